package main

import (
	"fmt"

	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/internal/database"
	"github.com/bastionmc/castles/internal/logging"
	"github.com/bastionmc/castles/internal/storage"
	gormstorage "github.com/bastionmc/castles/internal/storage/gorm"
	"github.com/bastionmc/castles/internal/storage/memory"
	"github.com/rs/zerolog"
)

func initStorage() error {
	Logger.Debug("Initializing storage")

	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	storageBackend = backend
	if err := storageBackend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}

	records, err := storageBackend.LoadCastles()
	if err != nil {
		return fmt.Errorf("failed to load castles: %w", err)
	}
	registry.Load(records, settingsStore.Get().WallStrength)
	Logger.Info("Castles loaded", "storage", storageCfg.Type, "count", len(records))
	return nil
}

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres", "sqlite":
		dbManager = database.NewManager(componentLogger("database"))

		var err error
		if storageCfg.Type == "postgres" {
			err = dbManager.Connect(config.GetDBConfig(), storageCfg.SQLite.Path)
		} else {
			err = dbManager.OpenSqlite(storageCfg.SQLite.Path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		Logger.Info("Database storage backend initialized",
			"type", storageCfg.Type,
			"local", dbManager.ShouldSaveLocal,
			"path", dbManager.SqliteFilePath)
		return gormstorage.New(gormstorage.Dependencies{
			DB:     dbManager.DB,
			Logger: componentLogger("storage"),
		}), nil

	default:
		Logger.Info("Memory storage backend initialized", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
}

func componentLogger(name string) zerolog.Logger {
	return logging.NewZerolog(name, config.GetString("logLevel"), true, logWriters()...)
}
