//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bloghq/apiserver/config"
	"github.com/bloghq/apiserver/internal/db"
	"github.com/bloghq/apiserver/internal/server"
)

const serverPort = 18080

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestBlogLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("alice_%d", time.Now().UnixNano())
	password := "P@ss1"

	// Signup.
	status, body := doJSON(t, http.MethodPost, baseURL+"/user/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status %d: %s", status, body)
	}
	if strings.Contains(string(body), "password_hash") {
		t.Fatalf("signup response leaks hash: %s", body)
	}

	// Login.
	status, body = doJSON(t, http.MethodPost, baseURL+"/user/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status %d: %s", status, body)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if len(strings.Split(loginResp.Token, ".")) != 3 {
		t.Fatalf("token is not a 3-segment JWT: %q", loginResp.Token)
	}
	token := loginResp.Token

	// Both failure modes answer identically.
	wrongStatus, wrongBody := doJSON(t, http.MethodPost, baseURL+"/user/login", "", map[string]string{
		"username": username,
		"password": "wrong",
	})
	unknownStatus, unknownBody := doJSON(t, http.MethodPost, baseURL+"/user/login", "", map[string]string{
		"username": "nonexistent",
		"password": "anything",
	})
	if wrongStatus != http.StatusUnauthorized || unknownStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrongStatus, unknownStatus)
	}
	if string(wrongBody) != string(unknownBody) {
		t.Fatalf("login failure bodies differ: %s vs %s", wrongBody, unknownBody)
	}

	// Unauthenticated create is rejected.
	status, _ = doJSON(t, http.MethodPost, baseURL+"/posts", "", map[string]any{
		"title":  "Nope",
		"author": username,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	// Create.
	status, body = doJSON(t, http.MethodPost, baseURL+"/posts", token, map[string]any{
		"title":    "Hello World",
		"author":   username,
		"contents": "First post.",
		"tags":     []string{"intro"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create post status %d: %s", status, body)
	}
	var post struct {
		ID     int      `json:"id"`
		Title  string   `json:"title"`
		Author string   `json:"author"`
		Tags   []string `json:"tags"`
	}
	if err := json.Unmarshal(body, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.ID == 0 || post.Author != username {
		t.Fatalf("unexpected created post: %+v", post)
	}

	// Read back: author resolved to username.
	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/posts/%d", baseURL, post.ID), "", nil)
	if status != http.StatusOK {
		t.Fatalf("get post status %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.Author != username {
		t.Fatalf("expected author %q, got %q", username, post.Author)
	}

	// Full-replacement update drops omitted tags.
	status, body = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/posts/%d", baseURL, post.ID), token, map[string]any{
		"title":    "Hello Again",
		"author":   username,
		"contents": "Rewritten.",
	})
	if status != http.StatusOK {
		t.Fatalf("update post status %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.Title != "Hello Again" || len(post.Tags) != 0 {
		t.Fatalf("update did not replace fields: %+v", post)
	}

	// Delete, and delete again.
	status, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/posts/%d", baseURL, post.ID), token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete post status %d", status)
	}
	status, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/posts/%d", baseURL, post.ID), token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete status %d, want 404", status)
	}
}

func doJSON(t *testing.T, method, url, token string, payload any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.DSN(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")
	migrator, err := migrate.New(migrationsURL, db.DSN(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()
	cfg.ServerPort = serverPort
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "e2e-test-secret"
	}

	logger := zap.NewNop()
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
		}
	}()
	return srv, nil
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.New("health check timeout")
		case <-ticker.C:
		}
	}
}
