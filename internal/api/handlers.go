package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/circuitbreaker"
	"github.com/oriys/cachebridge/internal/engine"
)

type setRequest struct {
	Value any             `json:"value"`
	TTL   json.RawMessage `json:"ttl"`
}

type getManyRequest struct {
	Keys    []any `json:"keys"`
	Default any   `json:"default"`
}

type setManyRequest struct {
	Values map[string]any  `json:"values"`
	TTL    json.RawMessage `json:"ttl"`
}

type deleteManyRequest struct {
	Keys []any `json:"keys"`
}

func (s *Server) listCaches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caches": s.bridges.Names()})
}

// describeCache reports the settings a cache falls back to between
// per-call TTL writes.
func (s *Server) describeCache(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":     b.Name(),
		"duration": b.OriginalDuration(),
		"prefix":   b.Engine().GetConfig(engine.SettingPrefix),
	})
}

func (s *Server) getItem(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	key := c.Param("key")
	v, err := b.Get(c.Request.Context(), key, bridge.ParseValue(c.Query("default")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
}

func (s *Server) hasItem(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	found, err := b.Has(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.Error(err)
		c.Status(statusOf(err))
		return
	}
	if !found {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) setItem(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	ttl, err := requestTTL(c, req.TTL)
	if err != nil {
		writeError(c, err)
		return
	}
	stored, err := b.Set(c.Request.Context(), c.Param("key"), req.Value, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": stored})
}

func (s *Server) deleteItem(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	deleted, err := b.Delete(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": deleted})
}

func (s *Server) clear(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	cleared, err := b.Clear(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": cleared})
}

func (s *Server) getMany(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	var req getManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	values, err := b.GetMultiple(c.Request.Context(), keysArg(req.Keys), req.Default)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values})
}

func (s *Server) setMany(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	var req setManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	ttl, err := requestTTL(c, req.TTL)
	if err != nil {
		writeError(c, err)
		return
	}
	var values any
	if req.Values != nil {
		values = req.Values
	}
	stored, err := b.SetMultiple(c.Request.Context(), values, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": stored})
}

func (s *Server) deleteMany(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	var req deleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	deleted, err := b.DeleteMultiple(c.Request.Context(), keysArg(req.Keys))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": deleted})
}

// bridge resolves the :cache parameter, writing the error response itself
// when the cache is unknown.
func (s *Server) bridge(c *gin.Context) (*bridge.Bridge, bool) {
	b, err := s.bridges.Get(c.Param("cache"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return b, true
}

// keysArg keeps a missing "keys" field distinguishable from an empty list
// so the bridge rejects it.
func keysArg(keys []any) any {
	if keys == nil {
		return nil
	}
	return keys
}

// requestTTL takes the ttl query parameter over the body field. The body
// accepts an integer number of seconds or a duration string.
func requestTTL(c *gin.Context, raw json.RawMessage) (any, error) {
	if q, ok := c.GetQuery("ttl"); ok {
		return bridge.ParseTTL(q)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, bridge.ErrInvalidTTL
		}
		return bridge.ParseTTL(s)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return nil, bridge.ErrInvalidTTL
	}
	return n, nil
}

func statusOf(err error) int {
	switch {
	case bridge.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownConfig):
		return http.StatusNotFound
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}
