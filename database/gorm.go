package database

import (
	"time"

	"github.com/agentsphere/agentsphere-api/config"
	"github.com/agentsphere/agentsphere-api/model"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM(env *config.EnvironmentVariable, log *zap.Logger) (*GORMStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.IsProduction() {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	// Open GORM connection
	db, err := gorm.Open(postgres.Open(env.PostgresDSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            true, // Prepare statements for better performance
	})
	if err != nil {
		log.Error("Unable to connect to PostgreSQL with GORM", zap.Error(err))
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Connected to PostgreSQL with GORM", zap.String("host", env.DB_HOST), zap.String("database", env.DB_NAME))

	return &GORMStore{db: db, logger: log}, nil
}

// NewGORMStore wraps an already open connection
func NewGORMStore(db *gorm.DB, log *zap.Logger) *GORMStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &GORMStore{db: db, logger: log}
}

// Models lists every table the service owns, in dependency order
func Models() []interface{} {
	return []interface{}{
		// Tenancy
		&model.Organization{},
		&model.User{},

		// Agent configuration
		&model.LLM{},
		&model.MCPServer{},
		&model.Agent{},

		// Conversations
		&model.SingleChat{},
		&model.GroupChat{},
		&model.Session{},
		&model.Message{},

		// Housekeeping
		&model.CronJobLog{},
		&model.JWTTokenBlacklist{},
		&model.BroadcastPayload{},
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	s.logger.Info("Running GORM AutoMigrate")

	if err := s.db.AutoMigrate(Models()...); err != nil {
		s.logger.Error("Error running AutoMigrate", zap.Error(err))
		return err
	}

	s.logger.Info("GORM AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	s.logger.Info("Closing database connection")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in repositories/handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
