package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/shared"
	tu "github.com/desertthunder/nowplaying/internal/testing"
	"github.com/urfave/cli/v3"
)

// writeConfig writes a config that keeps the sqlite store inside dir.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[database]\ndriver = \"sqlite\"\npath = %q\n\n[log]\nlevel = \"error\"\n\n%s", filepath.Join(dir, "nowplaying.db"), extra)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func newTestRunner(output io.Writer) *Runner {
	return NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "nowplaying", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"nowplaying"}, args...))
}

// seed stores record in the sqlite database configured at path.
func seed(t *testing.T, path string, record models.TokenRecord) {
	t.Helper()

	config, err := shared.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	store, err := repositories.Open(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
}

// loadWith runs loadConfig inside a parsed command carrying --config path.
func loadWith(t *testing.T, r *Runner, path string) (*shared.Config, error) {
	t.Helper()

	var config *shared.Config
	var err error
	cmd := &cli.Command{
		Name:  "test",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config, err = r.loadConfig(cmd)
			return nil
		},
	}
	if runErr := cmd.Run(context.Background(), []string{"test", "--config", path}); runErr != nil {
		t.Fatalf("command failed: %v", runErr)
	}
	return config, err
}

func testRecord() models.TokenRecord {
	return models.TokenRecord{
		Subscriber:   "spotify:user:abc",
		AccessToken:  "access-token-1234",
		RefreshToken: "refresh-token-5678",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("registers commands", func(t *testing.T) {
			var names []string
			for _, c := range newTestRunner(nil).register() {
				names = append(names, c.Name)
			}
			if strings.Join(names, ",") != "serve,setup,tokens,watch" {
				t.Errorf("unexpected commands %v", names)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := newTestRunner(output)

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := newTestRunner(output)

			if err := runner.writeJSON(map[string]int{"n": 1}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\"n\":1}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("unmarshalable data", func(t *testing.T) {
			runner := newTestRunner(&bytes.Buffer{})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})

		t.Run("write failure", func(t *testing.T) {
			runner := newTestRunner(&tu.FWriter{})
			if err := runner.writeJSON("x", false); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := newTestRunner(output)

		if err := runner.writePlain("hello %s\n", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world\n" {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := newTestRunner(&tu.FWriter{}).writePlain("x"); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file uses defaults", func(t *testing.T) {
			config, err := loadWith(t, newTestRunner(&bytes.Buffer{}), filepath.Join(t.TempDir(), "missing.toml"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if config.Server.Port != 3000 {
				t.Errorf("expected default port, got %d", config.Server.Port)
			}
		})

		t.Run("environment overrides", func(t *testing.T) {
			t.Setenv("SPOTIFY_CLIENT_ID", "from-env")

			config, err := loadWith(t, newTestRunner(&bytes.Buffer{}), writeConfig(t, t.TempDir(), ""))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if config.Credentials.Spotify.ClientID != "from-env" {
				t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
			}
		})

		t.Run("invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte("[server\nport = "), 0o644)

			if _, err := loadWith(t, newTestRunner(&bytes.Buffer{}), path); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("setup config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		output := &bytes.Buffer{}

		if err := run(newTestRunner(output), "setup", "config", "--config", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "[credentials.spotify]") {
			t.Error("expected template content")
		}
		if !strings.Contains(output.String(), "Config written") {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := run(newTestRunner(output), "setup", "config", "--config", path); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("setup database, status and rollback", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")

		output := &bytes.Buffer{}
		if err := run(newTestRunner(output), "setup", "database", "--config", path); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		if !strings.Contains(output.String(), "Token store ready (sqlite)") {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		if err := run(newTestRunner(output), "setup", "status", "--config", path); err != nil {
			t.Fatalf("setup status failed: %v", err)
		}
		if !strings.Contains(output.String(), "✓ 0000 create_tokens") {
			t.Errorf("expected applied migration, got %q", output.String())
		}

		output.Reset()
		if err := run(newTestRunner(output), "setup", "rollback", "--config", path); err != nil {
			t.Fatalf("setup rollback failed: %v", err)
		}

		output.Reset()
		if err := run(newTestRunner(output), "setup", "status", "--config", path); err != nil {
			t.Fatalf("setup status failed: %v", err)
		}
		if !strings.Contains(output.String(), "✗ 0000 create_tokens") {
			t.Errorf("expected pending migration, got %q", output.String())
		}
	})

	t.Run("status requires sqlite", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		os.WriteFile(path, []byte("[database]\ndriver = \"redis\"\n"), 0o644)

		err := run(newTestRunner(&bytes.Buffer{}), "setup", "status", "--config", path)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestTokensCommands(t *testing.T) {
	t.Run("show masks tokens", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")
		seed(t, path, testRecord())

		output := &bytes.Buffer{}
		if err := run(newTestRunner(output), "tokens", "show", "--config", path, "spotify:user:abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := output.String()
		if !strings.Contains(out, `"access_token": "****1234"`) || !strings.Contains(out, `"refresh_token": "****5678"`) {
			t.Errorf("expected masked tokens, got %s", out)
		}
		if strings.Contains(out, "access-token-1234") {
			t.Error("expected access token to be hidden")
		}
		if !strings.Contains(out, `"expired": false`) {
			t.Errorf("expected unexpired record, got %s", out)
		}
	})

	t.Run("show reveal", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")
		seed(t, path, testRecord())

		output := &bytes.Buffer{}
		if err := run(newTestRunner(output), "tokens", "show", "--config", path, "--reveal", "spotify:user:abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "access-token-1234") {
			t.Errorf("expected revealed token, got %s", output.String())
		}
	})

	t.Run("show unknown subscriber", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")

		err := run(newTestRunner(&bytes.Buffer{}), "tokens", "show", "--config", path, "spotify:user:nobody")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("show without subscriber", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")

		err := run(newTestRunner(&bytes.Buffer{}), "tokens", "show", "--config", path)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("refresh stores rotated token", func(t *testing.T) {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.PostForm.Get("refresh_token") != "refresh-token-5678" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new-access-9999","token_type":"Bearer","expires_in":3600,"refresh_token":"rotated-0000"}`)
		}))
		defer tokenServer.Close()

		dir := t.TempDir()
		path := writeConfig(t, dir, fmt.Sprintf("[credentials.spotify]\nclient_id = \"id\"\nclient_secret = \"secret\"\n\n[upstream]\ntoken_url = %q\nrate_limit = 0.0\n", tokenServer.URL))
		seed(t, path, testRecord())

		output := &bytes.Buffer{}
		if err := run(newTestRunner(output), "tokens", "refresh", "--config", path, "spotify:user:abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Refreshed spotify:user:abc") {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		if err := run(newTestRunner(output), "tokens", "show", "--config", path, "--reveal", "spotify:user:abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "new-access-9999") || !strings.Contains(output.String(), "rotated-0000") {
			t.Errorf("expected refreshed tokens stored, got %s", output.String())
		}
	})
}

func TestServeCommand(t *testing.T) {
	t.Run("requires credentials", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "")

		path := writeConfig(t, t.TempDir(), "[credentials.spotify]\nclient_id = \"\"\nclient_secret = \"\"\n")

		err := run(newTestRunner(&bytes.Buffer{}), "serve", "--config", path)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		os.WriteFile(path, []byte("[credentials.spotify]\nclient_id = \"id\"\nclient_secret = \"secret\"\n\n[database]\ndriver = \"mysql\"\n"), 0o644)

		err := run(newTestRunner(&bytes.Buffer{}), "serve", "--config", path)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

// resolveFeed runs watchFeed inside the watch command's flags and arguments.
func resolveFeed(t *testing.T, r *Runner, args ...string) (string, error) {
	t.Helper()

	var url string
	var err error
	c := watchCommand(r)
	c.Action = func(ctx context.Context, cmd *cli.Command) error {
		feed, ferr := r.watchFeed(cmd)
		if ferr != nil {
			err = ferr
			return nil
		}
		url = feed.URL()
		return nil
	}
	if runErr := c.Run(context.Background(), append([]string{"watch"}, args...)); runErr != nil {
		t.Fatalf("command failed: %v", runErr)
	}
	return url, err
}

func TestWatchCommand(t *testing.T) {
	t.Run("requires subscriber", func(t *testing.T) {
		err := run(newTestRunner(&bytes.Buffer{}), "watch", "--server", "http://localhost:8080")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("server flag", func(t *testing.T) {
		url, err := resolveFeed(t, newTestRunner(&bytes.Buffer{}), "--server", "http://music.example:9000", "spotify:user:abc")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if url != "http://music.example:9000/sse?uri=spotify%3Auser%3Aabc" {
			t.Errorf("unexpected feed URL %s", url)
		}
	})

	t.Run("falls back to public URL", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "[server]\npublic_url = \"https://np.example\"\n")

		url, err := resolveFeed(t, newTestRunner(&bytes.Buffer{}), "--config", path, "spotify:user:abc")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if url != "https://np.example/sse?uri=spotify%3Auser%3Aabc" {
			t.Errorf("unexpected feed URL %s", url)
		}
	})

	t.Run("rejects bad server URL", func(t *testing.T) {
		_, err := resolveFeed(t, newTestRunner(&bytes.Buffer{}), "--server", "ftp://example", "spotify:user:abc")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
