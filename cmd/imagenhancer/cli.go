package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/imagenhancer/enhancer"
	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/users"
)

// =============================================================================
// 🖼️ enhance 命令
// =============================================================================

// urlList 可重复的 --url 参数
type urlList []string

func (l *urlList) String() string { return strings.Join(*l, ",") }

func (l *urlList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty url")
	}
	*l = append(*l, v)
	return nil
}

// lockedWriter 让多个 JSONLines 共享同一个输出而不交错
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// enhanceOutcome 每个 URL 的最终结果行
type enhanceOutcome struct {
	URL    string `json:"url"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runEnhance(args []string) int {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	var urls urlList
	fs.Var(&urls, "url", "Image URL (repeatable)")
	userID := fs.String("user", "", "Host user ID")
	profile := fs.String("profile", "", "Profile: v1, v2 or v3")
	configPath := fs.String("config", "", "Path to config file")
	concurrency := fs.Int("concurrency", 4, "Maximum concurrent enhancements")
	fs.Parse(args)

	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "at least one --url is required")
		return 2
	}

	cfg := loadConfig(*configPath)
	// stdout 只留给事件
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store, closeStore, err := users.Open(cfg.Users, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open user store: %v\n", err)
		return 1
	}
	defer closeStore()

	generator, err := generation.NewFromConfig(cfg.Generation, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create generator: %v\n", err)
		return 1
	}
	enh, err := enhancer.New(cfg.Enhancer, generator, logger, enhancer.WithUserStore(store))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create enhancer: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := enhancer.ParseProfile(*profile, enh.DefaultProfile())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := enhanceURLs(ctx, enh, urls, *userID, p, *concurrency, os.Stdout, logger); err != nil {
		return 1
	}
	return 0
}

// enhanceURLs 并发增强多个 URL。每个事件写成一行 JSON 并带上 url 字段，
// 每个 URL 最后输出一行 {"url","result"|"error"}。任一失败时返回第一个错误，其余 URL 照常完成。
func enhanceURLs(ctx context.Context, enh *enhancer.Enhancer, urls []string, userID string, profile enhancer.Profile, concurrency int, out io.Writer, logger *zap.Logger) error {
	w := &lockedWriter{w: out}
	enc := json.NewEncoder(w)

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, u := range urls {
		g.Go(func() error {
			emitter := events.NewJSONLines(w, map[string]string{"url": u})
			result, err := enh.Enhance(ctx, enhancer.Request{ImageURL: u, UserID: userID, Profile: profile}, emitter)

			outcome := enhanceOutcome{URL: u, Result: result}
			if err != nil {
				outcome.Error = err.Error()
				logger.Warn("enhance failed", zap.String("url", u), zap.Error(err))
			}
			if encErr := enc.Encode(outcome); encErr != nil && err == nil {
				err = encErr
			}
			return err
		})
	}
	return g.Wait()
}

// =============================================================================
// 👤 users 命令
// =============================================================================

func runUsers(args []string) int {
	if len(args) == 0 || args[0] != "add" {
		fmt.Fprintln(os.Stderr, "usage: imagenhancer users add --id ID [--name N] [--email E] [--role R] [--token T] [--config PATH]")
		return 2
	}

	fs := flag.NewFlagSet("users add", flag.ExitOnError)
	id := fs.String("id", "", "User ID")
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email")
	role := fs.String("role", "user", "Role")
	token := fs.String("token", "", "Token used to call the generation backend as this user")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if cfg.Users.Driver == "" || cfg.Users.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "users add needs a persistent driver (sqlite or postgres)")
		return 2
	}

	store, closeStore, err := users.Open(cfg.Users, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open user store: %v\n", err)
		return 1
	}
	defer closeStore()

	u := &users.User{ID: *id, Name: *name, Email: *email, Role: *role, Token: *token}
	if err := addUser(context.Background(), store, u); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to add user: %v\n", err)
		return 1
	}
	fmt.Printf("user %s saved\n", u.ID)
	return 0
}

// addUser 校验并写入用户
func addUser(ctx context.Context, store users.ReadWriteStore, u *users.User) error {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return errors.New("--id is required")
	}
	if u.Role == "" {
		u.Role = "user"
	}
	return store.Upsert(ctx, u)
}
