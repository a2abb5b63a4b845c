package relorm

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	// Drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Entity interface {
	ConfigureEntity(e *EntityConfigurator)
}

var (
	globalConnections   = map[string]*Connection{}
	globalConnectionsMu sync.RWMutex
)

type ConnectionConfig struct {
	// Name defaults to "default".
	Name             string
	Driver           string
	ConnectionString string
	// DB and Dialect replace Driver and ConnectionString with an already opened database.
	DB       *sql.DB
	Dialect  *Dialect
	Entities []Entity
	// Debug logs every statement with its arguments.
	Debug    bool
	LogLevel LogLevel
	// Logger takes precedence over LogLevel.
	Logger Logger
}

// SetupConnections opens and registers the given connections globally.
func SetupConnections(configs ...ConnectionConfig) error {
	for _, config := range configs {
		conn, err := Connect(config)
		if err != nil {
			return err
		}
		globalConnectionsMu.Lock()
		globalConnections[conn.Name] = conn
		globalConnectionsMu.Unlock()
	}
	return nil
}

// GetConnection returns a connection registered by SetupConnections, or nil.
func GetConnection(name string) *Connection {
	globalConnectionsMu.RLock()
	defer globalConnectionsMu.RUnlock()
	return globalConnections[name]
}

// Connect opens a connection without registering it.
func Connect(config ConnectionConfig) (*Connection, error) {
	if config.Name == "" {
		config.Name = "default"
	}
	logger := config.Logger
	if logger == nil {
		zl, err := newZapLogger(config.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = zl
	}

	var (
		dialect *Dialect
		db      *sql.DB
		err     error
	)
	if config.DB != nil {
		db = config.DB
		dialect = config.Dialect
		if dialect == nil {
			if dialect, err = getDialect(config.Driver); err != nil {
				return nil, err
			}
		}
	} else {
		if dialect, err = getDialect(config.Driver); err != nil {
			return nil, err
		}
		if db, err = getDB(dialect, config.ConnectionString); err != nil {
			return nil, err
		}
	}

	conn := &Connection{
		Name:    config.Name,
		Dialect: dialect,
		DB:      db,
		logger:  logger,
		debug:   config.Debug,
		byType:  map[string]*schema{},
		byTable: map[string]*schema{},
	}
	for _, entity := range config.Entities {
		s, err := schemaOf(entity)
		if err != nil {
			return nil, err
		}
		if _, exists := conn.byTable[s.Table]; exists {
			return nil, fmt.Errorf("relorm: table %s registered twice on connection %s", s.Table, conn.Name)
		}
		conn.schemas = append(conn.schemas, s)
		conn.byType[typeKey(s.typ)] = s
		conn.byTable[s.Table] = s
	}
	if err := conn.resolveRelations(); err != nil {
		return nil, err
	}
	logger.Infof("connection %s ready: %s with %d entities", conn.Name, dialect.DriverName, len(conn.schemas))
	return conn, nil
}

func getDB(dialect *Dialect, connectionString string) (*sql.DB, error) {
	driver := dialect.DriverName
	if dialect == Dialects.SQLite3 && !strings.Contains(connectionString, "_foreign_keys") && !strings.Contains(connectionString, "_fk=") {
		sep := "?"
		if strings.Contains(connectionString, "?") {
			sep = "&"
		}
		connectionString += sep + "_foreign_keys=1"
	}
	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, err
	}
	if dialect == Dialects.SQLite3 && isMemoryDSN(connectionString) {
		// every pooled connection would open its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Schematic prints the schemas of every registered connection.
func Schematic() {
	WriteSchematic(os.Stdout)
}

func WriteSchematic(w io.Writer) {
	globalConnectionsMu.RLock()
	names := make([]string, 0, len(globalConnections))
	for name := range globalConnections {
		names = append(names, name)
	}
	sort.Strings(names)
	conns := make([]*Connection, 0, len(names))
	for _, name := range names {
		conns = append(conns, globalConnections[name])
	}
	globalConnectionsMu.RUnlock()

	for _, conn := range conns {
		fmt.Fprintf(w, "----------------%s---------------\n", conn.Name)
		conn.WriteSchematic(w)
		fmt.Fprintln(w, "-----------------------------------")
	}
}
