// Package web exposes a knockknock server over HTTP: health and
// metrics endpoints, a QR code that points phones at the websocket
// endpoint, and /ws itself, which plays the same line protocol through
// the server's Listener.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/metrics"
	"knockknock/internal/server"
	"knockknock/util"
)

const (
	timeout         = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	qrSize          = 320
)

// Options configures a Gateway.
type Options struct {
	// Listener runs the websocket sessions.  It must be started first.
	Listener      *server.Listener
	Metrics       *metrics.Collector
	Version       string
	MaxLineLength int
	Logger        *util.Logger
}

// Gateway is the HTTP front of a knockknock server.
type Gateway struct {
	opts     Options
	router   *httprouter.Router
	upgrader websocket.Upgrader
	log      *util.Logger
}

// New builds the router.  Nothing listens until Serve or Run.
func New(opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	g := &Gateway{
		opts:   opts,
		router: httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: timeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log: opts.Logger.With("web"),
	}

	g.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		g.log.Error("panic serving %s: %v", r.URL.Path, v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	g.router.GET("/healthz", g.serveHealth)
	g.router.GET("/version", g.serveVersion)
	g.router.GET("/metrics", g.serveMetrics)
	g.router.GET("/qr", g.serveQR)
	g.router.GET("/ws", g.serveWS)
	return g
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.router }

// Run listens on addr and serves until ctx is done.  A listen failure
// is returned as *errors.BindError.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &kkerr.BindError{Addr: addr, Err: err}
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
// Hijacked websocket connections are not waited for; the Listener owns
// them.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           g.router,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	errc := make(chan error, 1)
	go func() {
		g.log.Info("gateway on http://%s (websocket at /ws)", ln.Addr())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		g.log.Warn("gateway shutdown: %v", err)
	}
	return nil
}

func (g *Gateway) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	io.WriteString(w, "ok\n") //nolint:errcheck
}

func (g *Gateway) serveVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	io.WriteString(w, "knockknock v"+g.opts.Version+"\n") //nolint:errcheck
}

func (g *Gateway) serveMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, g.opts.Metrics.JSON()) //nolint:errcheck
	g.log.Debug("metrics to %s in %s", r.RemoteAddr, time.Since(start).Round(time.Microsecond))
}

// serveQR renders a PNG QR code of this gateway's websocket URL.
func (g *Gateway) serveQR(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	png, err := qrcode.Encode(wsURL(r), qrcode.Medium, qrSize)
	if err != nil {
		g.log.Warn("qr: %v", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png) //nolint:errcheck
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.opts.Listener == nil {
		http.Error(w, "no listener", http.StatusServiceUnavailable)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Verbose("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	if err := g.opts.Listener.Adopt(newWSConn(ws, g.opts.MaxLineLength)); err != nil {
		g.log.Verbose("websocket from %s not served: %v", r.RemoteAddr, err)
	}
}

// wsURL derives the public websocket URL from the request, honouring
// TLS and X-Forwarded-Proto.
func wsURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}
