package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MailboxGmail = "gmail"
	MailboxIMAP  = "imap"

	StoreSheets   = "sheets"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	DedupScan  = "scan"
	DedupIndex = "index"
)

type Config struct {
	LabelName       string
	SpreadsheetID   string
	SheetName       string
	IntervalMinutes int

	MailboxBackend string
	StoreBackend   string
	DedupMode      string

	CredentialsFile string
	TokenFile       string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool

	DatabaseURL string
	SQLitePath  string

	Port       string
	AdminToken string
	LogLevel   string
	Env        string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	interval, err := strconv.Atoi(GetEnv("INTERVAL_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("INTERVAL_MINUTES must be an integer: %w", err)
	}

	imapPort, err := strconv.Atoi(GetEnv("IMAP_PORT", "993"))
	if err != nil {
		return nil, fmt.Errorf("IMAP_PORT must be an integer: %w", err)
	}

	imapTLS, err := strconv.ParseBool(GetEnv("IMAP_TLS", "true"))
	if err != nil {
		return nil, fmt.Errorf("IMAP_TLS must be a boolean: %w", err)
	}

	return &Config{
		LabelName:       GetEnv("LABEL_NAME", ""),
		SpreadsheetID:   GetEnv("SPREADSHEET_ID", ""),
		SheetName:       GetEnv("SHEET_NAME", "Sheet1"),
		IntervalMinutes: interval,
		MailboxBackend:  GetEnv("MAILBOX_BACKEND", MailboxGmail),
		StoreBackend:    GetEnv("STORE_BACKEND", StoreSheets),
		DedupMode:       GetEnv("DEDUP_MODE", DedupScan),
		CredentialsFile: GetEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:       GetEnv("GOOGLE_TOKEN_FILE", "token.json"),
		IMAPHost:        GetEnv("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:        imapPort,
		IMAPUsername:    GetEnv("IMAP_USERNAME", ""),
		IMAPPassword:    GetEnv("IMAP_PASSWORD", ""),
		IMAPTLS:         imapTLS,
		DatabaseURL:     GetEnv("DATABASE_URL", ""),
		SQLitePath:      GetEnv("SQLITE_PATH", "labelsync.db"),
		Port:            GetEnv("PORT", "8080"),
		AdminToken:      GetEnv("ADMIN_TOKEN", ""),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		Env:             GetEnv("ENV", "development"),
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Interval returns the polling period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// IMAPGmailExtensions reports whether the IMAP server is Gmail and understands
// X-GM-MSGID and X-GM-THRID.
func (c *Config) IMAPGmailExtensions() bool {
	host := strings.ToLower(c.IMAPHost)
	return host == "imap.gmail.com" || host == "imap.googlemail.com"
}

// NeedsGoogleAuth reports whether any configured backend talks to Google APIs.
func (c *Config) NeedsGoogleAuth() bool {
	return c.MailboxBackend == MailboxGmail || c.StoreBackend == StoreSheets
}

func (c *Config) Validate() error {
	if c.LabelName == "" {
		return fmt.Errorf("LABEL_NAME is required")
	}
	if c.SpreadsheetID == "" {
		return fmt.Errorf("SPREADSHEET_ID is required")
	}
	if c.SheetName == "" {
		return fmt.Errorf("SHEET_NAME must not be empty")
	}
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("INTERVAL_MINUTES must be positive, got %d", c.IntervalMinutes)
	}

	switch c.MailboxBackend {
	case MailboxGmail:
	case MailboxIMAP:
		if c.IMAPHost == "" || c.IMAPUsername == "" || c.IMAPPassword == "" {
			return fmt.Errorf("IMAP_HOST, IMAP_USERNAME and IMAP_PASSWORD are required for the imap backend")
		}
	default:
		return fmt.Errorf("unknown MAILBOX_BACKEND %q", c.MailboxBackend)
	}

	switch c.StoreBackend {
	case StoreSheets, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.DedupMode != DedupScan && c.DedupMode != DedupIndex {
		return fmt.Errorf("unknown DEDUP_MODE %q", c.DedupMode)
	}

	if c.NeedsGoogleAuth() && c.CredentialsFile == "" {
		return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required")
	}
	return nil
}
