package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antibyte/retrofunge/pkg/auth"
	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/antibyte/retrofunge/pkg/runner"
	"github.com/antibyte/retrofunge/pkg/store"
	"github.com/antibyte/retrofunge/pkg/terminal"
	tlsmanager "github.com/antibyte/retrofunge/pkg/tls"

	"golang.org/x/term"
)

const usage = `usage:
  retrofunge [serve] [-config settings.cfg]
  retrofunge run [-config file] [-max-steps N] [-max-time D] [-seed S] program.bf
`

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "run") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		os.Exit(runCommand(args))
	default:
		os.Exit(serveCommand(args))
	}
}

// runCommand executes a program file on stdout and returns the exit code
func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file (optional)")
	maxSteps := fs.Int64("max-steps", -1, "Step limit, 0 for none (default from [Runner])")
	maxTime := fs.Duration("max-time", -1, "Run time limit, 0 for none (default from [Runner])")
	seed := fs.Int64("seed", 0, "Seed for the '?' instruction (0 picks one)")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	if *configPath != "" {
		if err := configuration.Initialize(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
			return 2
		}
		if err := logger.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
			return 2
		}
		defer logger.Close()
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading program: %v\n", err)
		return 2
	}

	eng, err := newProgramEngine(os.Stdout, source, *seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	limits := runner.DefaultLimits()
	if *maxSteps >= 0 {
		limits.MaxSteps = *maxSteps
	}
	if *maxTime >= 0 {
		limits.MaxRunTime = *maxTime
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := runner.Run(ctx, eng, limits)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println()
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v (after %d steps)\n", runErr, result.Steps)
		return 1
	}
	return 0
}

// newProgramEngine loads source into an engine that writes to out unbuffered,
// so output shows up while a long-running program is still going.
func newProgramEngine(out io.Writer, source []byte, seed int64) (*befunge.Engine, error) {
	eng := befunge.NewEngine(out)
	if seed != 0 {
		eng.SetRand(rand.New(rand.NewSource(seed)))
	}
	if err := eng.LoadSource(string(source)); err != nil {
		return nil, err
	}
	return eng, nil
}

// serveCommand starts the terminal web server and blocks until it stops
func serveCommand(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "settings.cfg", "Configuration file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		return 1
	}
	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	logger.ConfigInfo("System started - Configuration loaded from: %s", *configPath)

	db, err := store.Open(configuration.GetString("Database", "path", "retrofunge.db"))
	if err != nil {
		logger.Error(logger.AreaDatabase, "Database initialization failed: %v", err)
		return 1
	}
	defer db.Close()
	logger.DatabaseInfo("Program library ready")

	handler := terminal.NewTerminalHandler(db)
	defer handler.Shutdown()
	authHandlers := auth.NewHandlers(db)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/session", authHandlers.HandleCreateSession)
	mux.HandleFunc("/api/auth/login", authHandlers.HandleLogin)
	mux.HandleFunc("/api/auth/register", authHandlers.HandleRegister)
	mux.HandleFunc("/api/auth/logout", auth.HandleLogout)
	mux.HandleFunc("/api/programs", auth.RequireToken(handler.HandleProgramList))
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	mux.HandleFunc("/favicon.ico", http.NotFound)
	mux.Handle("/", http.FileServer(http.Dir(configuration.GetString("Server", "static_dir", "./static"))))

	tlsManager, err := tlsmanager.NewManager(tlsmanager.LoadSettings())
	if err != nil {
		logger.Error(logger.AreaSecurity, "TLS manager initialization failed: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []*http.Server
	errorChan := make(chan error, 2)

	if tlsManager.Enabled() {
		httpsServer := &http.Server{
			Addr:      tlsManager.HTTPSAddr(),
			Handler:   mux,
			TLSConfig: tlsManager.TLSConfig(),
		}
		servers = append(servers, httpsServer)
		go func() {
			logger.SecurityInfo("Starting HTTPS server on %s", httpsServer.Addr)
			errorChan <- httpsServer.ListenAndServeTLS("", "")
		}()

		if tlsManager.NeedsHTTPServer() {
			httpServer := &http.Server{Addr: tlsManager.HTTPAddr(), Handler: tlsManager.HTTPHandler(mux)}
			servers = append(servers, httpServer)
			go func() {
				logger.SecurityInfo("Starting HTTP server for challenges/redirects on %s", httpServer.Addr)
				errorChan <- httpServer.ListenAndServe()
			}()
		}
	} else {
		port := configuration.GetString("Server", "http_port", "8080")
		httpServer := &http.Server{Addr: ":" + port, Handler: mux}
		servers = append(servers, httpServer)
		go func() {
			logger.Info(logger.AreaGeneral, "Starting HTTP server on port %s", port)
			errorChan <- httpServer.ListenAndServe()
		}()
	}

	exitCode := 0
	select {
	case err := <-errorChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logger.AreaGeneral, "Server stopped: %v", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info(logger.AreaGeneral, "Shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(logger.AreaGeneral, "Shutdown of %s failed: %v", srv.Addr, err)
		}
	}
	return exitCode
}
