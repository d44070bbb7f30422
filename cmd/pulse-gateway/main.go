// ABOUTME: Entry point for the pulse-gateway real-time messaging server
// ABOUTME: Serves the REST API, websocket fanout, and unread sweep

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/quickmarket/pulse-gateway/internal/auth"
	"github.com/quickmarket/pulse-gateway/internal/config"
	"github.com/quickmarket/pulse-gateway/internal/gateway"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _
  _ __  _   _| |___  ___        __ _  __ _| |_ _____      ____ _ _   _
 | '_ \| | | | / __|/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | |_) | |_| | \__ \  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 | .__/ \__,_|_|___/\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
 |_|                           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: PULSE_CONFIG env var > XDG_CONFIG_HOME/pulse/gateway.yaml > ~/.config/pulse/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PULSE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pulse", "gateway.yaml")
}

// getDataPath returns the path to the pulse data directory.
// Priority: XDG_DATA_HOME/pulse > ~/.local/share/pulse
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "pulse")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pulse-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  bootstrap --name NAME --email EMAIL")
		fmt.Println("                         Create initial admin account and token")
		fmt.Println("  token --user ID --role ROLE")
		fmt.Println("                         Generate a JWT for an existing account")
		fmt.Println("  health                 Check gateway health")
		fmt.Println("  sessions               Show connected session count")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Sweep.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Sweep:    every %s\n", cfg.Sweep.Interval)
	}

	fmt.Println()

	logger.Info("starting pulse-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"sweep_enabled", cfg.Sweep.Enabled,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runSessions(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessions check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates database and admin account
// 3. Generates a JWT token for the admin
//
// One-command setup: pulse-gateway bootstrap --name "Your Name" --email you@example.com
func runBootstrap(ctx context.Context) error {
	var displayName, email string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("--email flag is required")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "gateway.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	var cfg *config.Config
	var jwtSecret string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# pulse-gateway configuration
# Generated by pulse-gateway bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

socket:
  ping_interval: "10s"
  ping_timeout: "15s"

sweep:
  enabled: true
  interval: "1m"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		jwtSecret = cfg.Auth.JWTSecret

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	admins, err := s.ListUsersByRole(ctx, store.RoleAdmin)
	if err != nil {
		return fmt.Errorf("checking admin accounts: %w", err)
	}
	if len(admins) > 0 {
		return fmt.Errorf("bootstrap already complete: %d admin account(s) exist", len(admins))
	}

	adminID := uuid.New().String()
	admin := &store.User{
		ID:        adminID,
		Fullname:  displayName,
		Email:     email,
		Role:      store.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}

	green.Printf("  ✓ Created admin account: %s\n", displayName)

	verifier, err := auth.NewJWTVerifier([]byte(jwtSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	// Default TTL: 30 days
	tokenTTL := 30 * 24 * time.Hour
	expiresAt := time.Now().Add(tokenTTL).UTC()

	token, err := verifier.Generate(auth.Identity{UserID: adminID, Role: store.RoleAdmin}, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Admin Account")
	cyan.Println("  -------------")
	fmt.Printf("  ID:    %s\n", adminID)
	fmt.Printf("  Name:  %s\n", displayName)
	fmt.Printf("  Email: %s\n", email)
	fmt.Printf("  Role:  admin\n")
	fmt.Printf("  Token: %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    pulse-gateway serve    # start the gateway")
	fmt.Println("    pulse-gateway health   # verify it is up")
	fmt.Println()

	return nil
}

// runToken generates a JWT for an existing account. Useful for connecting
// test clients without going through the platform's login flow.
func runToken() error {
	var userID, role string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case arg == "--role" || arg == "-r":
			if i+1 >= len(args) {
				return fmt.Errorf("--role requires a value")
			}
			role = args[i+1]
			i++
		case strings.HasPrefix(arg, "--role="):
			role = strings.TrimPrefix(arg, "--role=")
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}
	if role == "" {
		role = store.RoleConsumer
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(auth.Identity{UserID: userID, Role: role}, 30*24*time.Hour)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("pulse-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	// Sweep
	fmt.Println("\n--- Unread Sweep Configuration ---")
	sweepEnabledStr := prompt(reader, "Enable unread digest sweep?", "yes")
	sweepEnabled := strings.ToLower(sweepEnabledStr) == "yes" || strings.ToLower(sweepEnabledStr) == "y"
	sweepInterval := "1m"
	if sweepEnabled {
		sweepInterval = prompt(reader, "Sweep interval", "1m")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# pulse-gateway configuration\n")
	cfg.WriteString("# Generated by pulse-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	cfg.WriteString("socket:\n")
	cfg.WriteString("  ping_interval: \"10s\"\n")
	cfg.WriteString("  ping_timeout: \"15s\"\n")
	cfg.WriteString("  write_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("sweep:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", sweepEnabled))
	cfg.WriteString(fmt.Sprintf("  interval: \"%s\"\n", sweepInterval))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  pulse-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
