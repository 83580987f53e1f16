package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ConnorWiseman/taka/internal/config"
	"github.com/ConnorWiseman/taka/internal/ipaddr"
	"github.com/ConnorWiseman/taka/internal/presence"
	"github.com/ConnorWiseman/taka/internal/ratelimit"
	"github.com/ConnorWiseman/taka/internal/store"
)

// Message sends are limited to sendLimit per sendInterval seconds per
// connection.
const (
	sendLimit    = 6
	sendInterval = 5
)

// The widget is embedded on arbitrary third-party pages, so the upgrade
// accepts any origin. Abuse control happens in the pipeline, not here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server owns the chat protocol: the admission pipeline, the broadcast hub
// and the inbound event handlers.
type Server struct {
	cfg      config.Config
	stores   *store.Stores
	hub      *Hub
	presence *presence.Registry
	dispatch map[string]binding
}

func NewServer(cfg config.Config, stores *store.Stores, hub *Hub, registry *presence.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		stores:   stores,
		hub:      hub,
		presence: registry,
	}
	s.dispatch = s.bindings()
	return s
}

// clientAddr resolves the connecting peer's IPv4 address in both its string
// and numeric forms. Ban records key on the numeric form, so a connection
// whose address cannot be resolved cannot be admitted.
func clientAddr(r *http.Request) (string, uint32, error) {
	s := ipaddr.FromRequest(r)
	ip, err := ipaddr.ToInt(s)
	if err != nil {
		return s, 0, err
	}
	return s, ip, nil
}

// Handler upgrades an incoming request and runs the connection through the
// admission pipeline before handing it to the event dispatcher.
func (s *Server) Handler() gin.HandlerFunc {
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			return
		}

		ipString, ip, err := clientAddr(g.Request)
		if err != nil {
			log.Warn().Str("remote", ipString).Msg("unparseable client address, rejecting")
			_ = conn.Close()
			return
		}

		c := &Client{
			ID:           uuid.NewString(),
			srv:          s,
			conn:         conn,
			send:         make(chan []byte, sendBuffer),
			ctx:          g.Request.Context(),
			limiter:      ratelimit.New(sendLimit, sendInterval),
			rawSessionID: g.Query("session_id"),
			ipString:     ipString,
			ip:           ip,
		}
		go c.writePump()

		if err := s.admit(c.ctx, c); err != nil {
			// Queued notices (e.g. the ban notice) flush before the close
			// frame goes out.
			c.close()
			s.hub.Unregister(c)
			return
		}
		defer s.cleanup(c)
		c.readPump()
	}
}
