package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/config"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
)

type WebServerConfig struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	ConfigFile       string `errorTxt:"config file" mandatory:"yes"`
	Scheme           string `errorTxt:"scheme" mandatory:"no"`
	Addr             net.IP `errorTxt:"address" mandatory:"no"`
	Port             int    `errorTxt:"port" mandatory:"yes"`
	RunTimeout       time.Duration
	StackDumpOnPanic bool
}

func RunWebServer(web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	// Check if we have valid input params.
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	var srv *http.Server
	log := logger.NewWebLogger(c.ServiceName, web.LogLevel, web.StackDumpOnPanic, func() {
		if srv != nil { // if a fatal error stops the process...
			_ = srv.Close()
		}
	})
	jobCfg, err := config.LoadJobConfig(web.ConfigFile)
	if err != nil {
		return err
	}
	h := NewJobHandlers(log, jobCfg, func(ctx context.Context, runDate time.Time) (*JobContext, error) {
		return NewJobContext(ctx, log, jobCfg, runDate)
	})
	// Start the web server.
	srv, chanStopServer := runServer(log, web, h)
	// Block & wait for completion.
	return waitForServer(log, srv, chanStopServer)
}

// NewRouter returns the routes served by the web server.
func NewRouter(log logger.Logger, h *JobHandlers, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.Path("/health").Methods(http.MethodGet).HandlerFunc(GetHandlerHealth(log))
	r.Path("/status").Methods(http.MethodGet).HandlerFunc(h.GetHandlerStatus())
	r.Path("/etl/{mode}").Methods(http.MethodPost).HandlerFunc(h.GetHandlerEtl())
	r.Path("/replication/start").Methods(http.MethodPost).HandlerFunc(h.GetHandlerReplicationStart())
	r.Path("/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerStopServer(log, chanStopServer))
	return r
}

// runServer starts a web server and returns:
// 1) the server; and
// 2) a channel that can be used to stop the web server
func runServer(log logger.Logger, web *WebServerConfig, h *JobHandlers) (*http.Server, chan string) {
	chanStopServer := make(chan string, 1)
	runTimeout := web.RunTimeout
	if runTimeout == 0 {
		runTimeout = 30 * time.Minute
	}
	// Configure HTTP server.
	srv := &http.Server{
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: runTimeout, // a load responds when it is done.
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      NewRouter(log, h, chanStopServer),
	}
	// Run HTTP server non-blocking.
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Error(err)
				select {
				case chanStopServer <- "error":
				default:
				}
			}
		}
	}()
	scheme := web.Scheme
	if scheme == "" {
		scheme = "http"
	}
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(scheme), web.Addr, web.Port))
	return srv, chanStopServer
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string) error {
	// Block & wait for shutdown signals.
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+\) will not be caught.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt) // request signals be sent to chanOS.
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	log.Info("Shutting down web server...")
	// Running loads finish before the server stops, up to the deadline.
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return srv.Shutdown(ctx) // doesn't block if no connections, but will otherwise wait until the timeout deadline.
}
