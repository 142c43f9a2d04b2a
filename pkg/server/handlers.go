package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/l7mp/dflow/pkg/delta"
	"github.com/l7mp/dflow/pkg/visualize"
)

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"nodes":    s.graph.NodeCount(),
		"views":    s.graph.Leaves(),
		"sessions": s.SessionCount(),
	})
}

func (s *Server) handleGraph(c *gin.Context) {
	if err := s.authenticate(c.Request); err != nil {
		s.abort(c, err)
		return
	}

	gen, err := visualize.NewGenerator(c.DefaultQuery("format", "dot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorFrame{Error: err.Error()})
		return
	}

	c.String(http.StatusOK, gen.Generate(visualize.BuildGraph(s.config.Name, s.graph, s.config.Paths)))
}

func (s *Server) handleView(c *gin.Context) {
	path := c.Param("path")
	spec, perm, err := s.authorize(c.Request, path)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !perm.CanRead() {
		c.JSON(http.StatusForbidden, ErrorFrame{Error: "path " + path + " is not readable"})
		return
	}

	snapshot, err := s.executor.Snapshot(c.Request.Context(), spec.View)
	if err != nil {
		s.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, delta.NewEnvelope(spec.View, snapshot))
}

func (s *Server) handleWebSocket(c *gin.Context) {
	path := c.Param("path")
	spec, perm, err := s.authorize(c.Request, path)
	if err != nil {
		sessionsTotal.WithLabelValues(path, "rejected").Inc()
		s.abort(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		sessionsTotal.WithLabelValues(path, "rejected").Inc()
		s.log.V(1).Info("websocket upgrade failed", "path", path, "error", err.Error())
		return
	}
	sessionsTotal.WithLabelValues(path, "accepted").Inc()

	sess := newSession(s, uuid.New().String(), conn, spec, perm)
	sess.run()
}

func (s *Server) abort(c *gin.Context, err error) {
	status := statusOf(err)
	s.log.V(2).Info("request failed", "path", c.Request.URL.Path, "status", status, "error", err.Error())
	c.AbortWithStatusJSON(status, ErrorFrame{Error: err.Error()})
}
