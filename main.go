package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CNMengHan/CialloSecurityChat/internal/chat"
	"github.com/CNMengHan/CialloSecurityChat/internal/config"
	"github.com/CNMengHan/CialloSecurityChat/internal/diag"
	"github.com/CNMengHan/CialloSecurityChat/internal/hub"
	internalhttp "github.com/CNMengHan/CialloSecurityChat/internal/http"
	"github.com/CNMengHan/CialloSecurityChat/internal/names"
	"github.com/CNMengHan/CialloSecurityChat/internal/session"
	"github.com/CNMengHan/CialloSecurityChat/internal/store"
	"github.com/CNMengHan/CialloSecurityChat/internal/transport/rpc"
	"github.com/CNMengHan/CialloSecurityChat/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := diag.NewLogBuffer(cfg.LogBufferSize)
	log := diag.NewLogger(cfg.SlogLevel(), logBuffer)

	log.Info("starting chat server",
		"http_port", cfg.HTTPPort,
		"rpc_port", cfg.RPCPort,
		"store", cfg.StoreDriver,
	)

	pool, err := names.Load(cfg.NamesFile)
	if err != nil {
		log.Error("failed to load name pool", "path", cfg.NamesFile, "error", err)
		os.Exit(1)
	}
	log.Info("name pool loaded", "names", pool.Len())

	st, err := store.Open(store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		BadgerPath:  cfg.BadgerPath,
	})
	if err != nil {
		log.Error("failed to open message store", "error", err)
		os.Exit(1)
	}

	// Initialize hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	connectionHub := hub.NewHub(cfg.SendBufferSize, log)
	go connectionHub.Run(hubCtx)

	sessions := session.NewRegistry()
	pipeline := chat.NewPipeline(sessions, st, connectionHub, log)

	wsServer := ws.NewServer(cfg, connectionHub, pool, sessions, pipeline, log)
	httpServer := internalhttp.NewServer(pipeline, connectionHub, sessions, logBuffer, wsServer.HandleWebSocket, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start HTTP server", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("HTTP server started", "port", cfg.HTTPPort)

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(pipeline, connectionHub, sessions, log)
		if err != nil {
			log.Error("failed to create RPC server", "error", err)
			os.Exit(1)
		}
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
			log.Error("failed to start RPC server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				log.Error("RPC server stopped", "error", err)
			}
		}()
		log.Info("RPC server started", "port", cfg.RPCPort)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down chat server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to shutdown HTTP server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shutdown RPC server gracefully", "error", err)
		}
	}

	stopHub()
	<-connectionHub.Done()

	if err := st.Close(); err != nil {
		log.Warn("failed to close message store", "error", err)
	}

	log.Info("chat server stopped")
}
