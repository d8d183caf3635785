package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"relgraph/src/directors"
	"relgraph/src/helpers"
	"relgraph/src/settings"

	"go.uber.org/zap"
)

// Server serves the command shell over TCP, one session per connection.
type Server struct {
	ListenAddr        string
	Listener          net.Listener
	ActiveConnections map[string]*Connection
	mu                sync.Mutex
	running           bool
	wg                sync.WaitGroup
	service           *directors.GraphService
	logger            *zap.SugaredLogger
}

// Connection represents an active client connection
type Connection struct {
	ID         string
	Conn       net.Conn
	LastActive time.Time
	Logger     *zap.SugaredLogger
}

// NewLogger builds the process logger: the development config when debug
// is on, production otherwise, optionally teeing into a log file.
func NewLogger(config *settings.Arguments) (*zap.SugaredLogger, error) {
	var zc zap.Config
	if config.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	zc.OutputPaths = nil
	if config.PrintToScreen || config.LogDir == "" {
		zc.OutputPaths = append(zc.OutputPaths, "stderr")
	}
	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(config.LogDir, timestamp+"_relgraph.log"))
	}
	if config.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}

func InitServer(config *settings.Arguments, service *directors.GraphService, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		ListenAddr:        config.Listen,
		ActiveConnections: make(map[string]*Connection),
		service:           service,
		logger:            logger,
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return fmt.Errorf("error starting server on %s: %w", s.ListenAddr, err)
	}

	s.mu.Lock()
	s.Listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Infow("Shell server listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr is the bound listener address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Listener == nil {
		return ""
	}
	return s.Listener.Addr().String()
}

// Stop closes the listener and every open session and waits for them to
// finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.running = false
	var err error
	if s.Listener != nil {
		err = s.Listener.Close()
	}
	for _, conn := range s.ActiveConnections {
		conn.Conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Server shutdown complete")
	_ = s.logger.Sync()
	return err
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorw("Error accepting connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(c)
		}(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	connection := &Connection{
		ID:         helpers.GenerateUUID(),
		Conn:       conn,
		LastActive: time.Now(),
	}
	connection.Logger = s.logger.With(
		"connID", connection.ID,
		"remoteAddr", conn.RemoteAddr().String())

	s.mu.Lock()
	s.ActiveConnections[connection.ID] = connection
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.ActiveConnections, connection.ID)
		s.mu.Unlock()
		connection.Logger.Info("Connection closed")
	}()

	connection.Logger.Info("New connection received")
	if err := ServeSession(s.service, connection.ID, conn, conn, connection.Logger); err != nil {
		connection.Logger.Warnw("Session ended with error", "error", err)
	}
}

// ServeSession reads one command per line from r and writes one JSON
// response per line to w until QUIT or end of input.
func ServeSession(service *directors.GraphService, id string, r io.Reader, w io.Writer, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	reader := bufio.NewScanner(r)
	reader.Buffer(make([]byte, 0, 64*1024), 1<<20)
	writer := bufio.NewWriter(w)

	sendJSON(writer, map[string]interface{}{
		"status":  "success",
		"message": "relgraph shell, type HELP for commands",
		"session": id,
	})

	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.EqualFold(line, "QUIT") || strings.EqualFold(line, "EXIT") {
			sendSuccess(writer, "Goodbye")
			break
		}

		start := time.Now()
		resp, err := directors.CommandDirector(service, line)
		if err != nil {
			logger.Debugw("Command failed", "command", line, "error", err)
			sendError(writer, err.Error())
			continue
		}
		logger.Debugw("Command executed",
			"command", line,
			"results", resp.ResultCount,
			"elapsed", time.Since(start))
		sendJSON(writer, resp)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return reader.Err()
}

func sendError(writer *bufio.Writer, message string) {
	sendJSON(writer, map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}

func sendSuccess(writer *bufio.Writer, message string) {
	sendJSON(writer, map[string]interface{}{
		"status":  "success",
		"message": message,
	})
}

func sendJSON(writer *bufio.Writer, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]interface{}{
			"status":  "error",
			"message": fmt.Sprintf("failed to encode response: %v", err),
		})
	}
	writer.Write(data)
	writer.WriteByte('\n')
	writer.Flush()
}
