package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sushant-115/heapstore/config"
	record "github.com/sushant-115/heapstore/core/record_engine"
	"github.com/sushant-115/heapstore/core/storage_engine/buffer"
	"github.com/sushant-115/heapstore/core/storage_engine/common"
	"github.com/sushant-115/heapstore/core/storage_engine/disk"
	"github.com/sushant-115/heapstore/pkg/logger"
	"github.com/sushant-115/heapstore/pkg/telemetry"
)

// server holds the storage stack and the table of open record files.
type server struct {
	cfg *config.Config
	log *zap.Logger
	rm  *record.Manager

	mu    sync.Mutex
	files map[string]*record.FileHandle
}

func newServer(cfg *config.Config, log *zap.Logger, rm *record.Manager) *server {
	return &server{
		cfg:   cfg,
		log:   log,
		rm:    rm,
		files: make(map[string]*record.FileHandle),
	}
}

func (s *server) filePath(name string) string {
	return filepath.Join(s.cfg.DataDir, name+".hsf")
}

func (s *server) lookup(name string) (*record.FileHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrFileNotOpen, name)
	}
	return h, nil
}

// handleCommand executes one protocol line and returns the reply.
func (s *server) handleCommand(ctx context.Context, line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "ERROR: empty command"
	}
	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	switch cmd {
	case "CREATE":
		if len(args) != 2 {
			return "ERROR: CREATE requires <file> <record_size>"
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Sprintf("ERROR: bad record size %q", args[1])
		}
		if err := s.rm.CreateFile(s.filePath(args[0]), size); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: file created"

	case "OPEN":
		if len(args) != 1 {
			return "ERROR: OPEN requires <file>"
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.files[args[0]]; ok {
			return "OK: already open"
		}
		h, err := s.rm.OpenFile(s.filePath(args[0]))
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		s.files[args[0]] = h
		return fmt.Sprintf("OK: opened, record_size=%d num_pages=%d", h.RecordSize(), h.NumPages())

	case "CLOSE":
		if len(args) != 1 {
			return "ERROR: CLOSE requires <file>"
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		h, ok := s.files[args[0]]
		if !ok {
			return "ERROR: file not open"
		}
		delete(s.files, args[0])
		if err := s.rm.CloseFile(h); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: closed"

	case "DROP":
		if len(args) != 1 {
			return "ERROR: DROP requires <file>"
		}
		if err := s.rm.DestroyFile(s.filePath(args[0])); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: dropped"

	case "INSERT":
		if len(args) < 2 {
			return "ERROR: INSERT requires <file> <payload>"
		}
		h, err := s.lookup(args[0])
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		payload := strings.Join(args[1:], " ")
		rid, err := h.InsertRecord([]byte(payload))
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return fmt.Sprintf("OK: %d %d", rid.PageNo, rid.SlotNo)

	case "GET":
		h, rid, errMsg := s.ridArgs("GET", args)
		if errMsg != "" {
			return errMsg
		}
		rec, err := h.GetRecord(rid)
		if err != nil {
			if errors.Is(err, common.ErrRecordNotFound) {
				return fmt.Sprintf("NOT_FOUND: %s", rid)
			}
			return fmt.Sprintf("ERROR: %v", err)
		}
		return fmt.Sprintf("OK: %s", string(rec.Data))

	case "UPDATE":
		if len(args) < 4 {
			return "ERROR: UPDATE requires <file> <page> <slot> <payload>"
		}
		h, rid, errMsg := s.ridArgs("UPDATE", args[:3])
		if errMsg != "" {
			return errMsg
		}
		payload := strings.Join(args[3:], " ")
		if err := h.UpdateRecord(rid, []byte(payload)); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: updated"

	case "DELETE":
		h, rid, errMsg := s.ridArgs("DELETE", args)
		if errMsg != "" {
			return errMsg
		}
		if err := h.DeleteRecord(rid); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: deleted"

	case "SCAN":
		if len(args) != 1 {
			return "ERROR: SCAN requires <file>"
		}
		h, err := s.lookup(args[0])
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		scan, err := record.NewScan(h)
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		var sb strings.Builder
		count := 0
		for !scan.IsEnd() {
			rid := scan.Rid()
			rec, err := h.GetRecord(rid)
			if err != nil {
				return fmt.Sprintf("ERROR: %v", err)
			}
			fmt.Fprintf(&sb, "%d %d %s\n", rid.PageNo, rid.SlotNo, string(rec.Data))
			count++
			if err := scan.Next(); err != nil {
				return fmt.Sprintf("ERROR: %v", err)
			}
		}
		if count == 0 {
			return "OK: 0 records"
		}
		return fmt.Sprintf("OK: %d records\n%s", count, strings.TrimRight(sb.String(), "\n"))

	case "FLUSH":
		if len(args) != 1 {
			return "ERROR: FLUSH requires <file>"
		}
		h, err := s.lookup(args[0])
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		if err := h.Flush(); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: flushed"

	case "BACKUP":
		if len(args) != 2 {
			return "ERROR: BACKUP requires <file> <dst_path>"
		}
		h, err := s.lookup(args[0])
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		if err := h.Flush(); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		sum, err := common.BackupFile(ctx, s.filePath(args[0]), args[1], s.cfg.Server.BackupRateBytesPerSec)
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return fmt.Sprintf("OK: sha256=%s", sum)

	default:
		return fmt.Sprintf("ERROR: unknown command %s", cmd)
	}
}

// ridArgs parses "<file> <page> <slot>" argument triples.
func (s *server) ridArgs(cmd string, args []string) (*record.FileHandle, record.Rid, string) {
	if len(args) != 3 {
		return nil, record.Rid{}, fmt.Sprintf("ERROR: %s requires <file> <page> <slot>", cmd)
	}
	h, err := s.lookup(args[0])
	if err != nil {
		return nil, record.Rid{}, fmt.Sprintf("ERROR: %v", err)
	}
	pageNo, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, record.Rid{}, fmt.Sprintf("ERROR: bad page number %q", args[1])
	}
	slotNo, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, record.Rid{}, fmt.Sprintf("ERROR: bad slot number %q", args[2])
	}
	return h, record.Rid{PageNo: pageNo, SlotNo: slotNo}, ""
}

// handleConnection serves one client until EOF or QUIT.
func (s *server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()
	connLog := s.log.With(zap.String("conn_id", connID), zap.String("remote", conn.RemoteAddr().String()))
	connLog.Info("client connected")

	var limiter *rate.Limiter
	if s.cfg.Server.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.Server.RequestsPerSecond), s.cfg.Server.RequestBurst)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				connLog.Info("client disconnected")
			} else {
				connLog.Error("read failed", zap.Error(err))
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "QUIT") {
			fmt.Fprintln(conn, "OK: bye")
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		reply := s.handleCommand(ctx, line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			connLog.Error("write failed", zap.Error(err))
			return
		}
	}
}

// closeAll closes every open record file.
func (s *server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, h := range s.files {
		if err := s.rm.CloseFile(h); err != nil {
			s.log.Error("close on shutdown failed", zap.String("file", name), zap.Error(err))
		}
		delete(s.files, name)
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, telShutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("failed to create data dir", zap.String("dir", cfg.DataDir), zap.Error(err))
	}

	dm := disk.NewManager(cfg.PageSize, log)
	replacer, err := buffer.NewReplacer(buffer.Policy(cfg.BufferPool.ReplacerPolicy), cfg.BufferPool.PoolSize)
	if err != nil {
		log.Fatal("failed to build replacer", zap.Error(err))
	}
	metrics, err := buffer.NewMetrics(tel.Meter)
	if err != nil {
		log.Fatal("failed to register buffer pool metrics", zap.Error(err))
	}
	bpm := buffer.NewBufferPoolManager(cfg.BufferPool.PoolSize, dm, replacer, log, metrics)
	rm := record.NewManager(dm, bpm, log)
	srv := newServer(cfg, log, rm)

	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.Server.ListenAddr), zap.Error(err))
	}
	log.Info("heapstore server listening", zap.String("addr", cfg.Server.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("accept failed", zap.Error(err))
			continue
		}
		go srv.handleConnection(ctx, conn)
	}

	srv.closeAll()
	if err := telShutdown(context.Background()); err != nil {
		log.Error("telemetry shutdown failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}
