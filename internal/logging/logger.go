package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config define destino y nivel del log de la migración.
type Config struct {
	Environment string
	Level       string
	File        string
}

// New crea un logger que escribe JSON al archivo de migración (truncado en cada corrida)
// y warnings+ en consola por stderr. El close devuelto hace Sync y cierra el archivo.
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	consoleEncoderCfg := zap.NewProductionEncoderConfig()
	if cfg.Environment == "development" {
		consoleEncoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	consoleEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && l >= level
	})
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), zapcore.Lock(os.Stderr), consoleLevel),
	}

	var file *os.File
	if cfg.File != "" {
		file, err = os.Create(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		fileEncoderCfg := zap.NewProductionEncoderConfig()
		fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closeFn, nil
}
