package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	commonaws "social-support-workers/internal/common/aws"
	"social-support-workers/internal/common/camunda"
	"social-support-workers/internal/common/config"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/service"
	"social-support-workers/pkg/registry"

	chr "social-support-workers/internal/workers/ai-conversation/chat-reply"
	car "social-support-workers/internal/workers/application/create-application-record"
	pa "social-support-workers/internal/workers/application/process-application"
	sn "social-support-workers/internal/workers/application/send-notification"
	va "social-support-workers/internal/workers/application/validate-application"
)

// pingFunc adapts a health check to api.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type workerDeps struct {
	db           *sql.DB
	index        service.DecisionIndex
	applications *service.ApplicationService
	chat         *service.ChatService
	log          logger.Logger
}

var taskTypes = []string{va.TaskType, pa.TaskType, car.TaskType, sn.TaskType, chr.TaskType}

// startWorkers opens a job worker per enabled task type. The returned func
// closes them.
func startWorkers(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, deps workerDeps, zapLog *zap.Logger) func() {
	reg := loadRegistry(cfg.App.Registry, zapLog)
	timeout := func(taskType string) time.Duration {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		def := config.GetDuration(wcfg.Timeout)
		if reg == nil {
			return def
		}
		return reg.TimeoutFor(taskType, def)
	}

	client := zeebe.Zeebe()
	var started []worker.JobWorker
	start := func(taskType string, handler func(worker.JobClient, entities.Job)) {
		if jw := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), handler, zapLog); jw != nil {
			started = append(started, jw)
		}
	}

	if config.IsWorkerEnabled(cfg, va.TaskType) {
		handler := va.NewHandler(&va.Config{Timeout: timeout(va.TaskType)}, deps.log)
		start(va.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, pa.TaskType) {
		handler := pa.NewHandler(&pa.Config{Timeout: timeout(pa.TaskType)}, deps.applications, deps.log)
		start(pa.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, car.TaskType) {
		handler := car.NewHandler(&car.Config{Timeout: timeout(car.TaskType)}, deps.db, deps.index, deps.log)
		start(car.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, sn.TaskType) {
		var ses sn.SESService
		var sns sn.SNSService
		notify := cfg.Notifications
		if notify.Email.Enabled || notify.SMS.Enabled {
			clients, err := commonaws.NewClients(ctx, notify.AWS.Region)
			if err != nil {
				zapLog.Fatal("failed to create AWS clients for send-notification", zap.Error(err))
			}
			ses, sns = clients.SES, clients.SNS
		}
		handler := sn.NewHandler(&sn.Config{
			EmailEnabled: notify.Email.Enabled,
			SMSEnabled:   notify.SMS.Enabled,
			FromEmail:    notify.Email.FromEmail,
			Timeout:      timeout(sn.TaskType),
		}, deps.db, ses, sns, deps.log)
		start(sn.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, chr.TaskType) {
		handler := chr.NewHandler(&chr.Config{Timeout: timeout(chr.TaskType)}, deps.chat, &chatReplyLoggerAdapter{deps.log})
		start(chr.TaskType, handler.Handle)
	}

	zapLog.Info("workers registered", zap.Int("started", len(started)), zap.Int("known", len(taskTypes)))

	return func() {
		for _, jw := range started {
			jw.Close()
			jw.AwaitClose()
		}
	}
}

// loadRegistry reads the activity registry and reports task types it does
// not describe. A missing registry is not fatal.
func loadRegistry(path string, zapLog *zap.Logger) *registry.ActivityRegistry {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if os.IsNotExist(err) {
			zapLog.Info("activity registry not found, using worker config timeouts", zap.String("path", path))
		} else {
			zapLog.Warn("activity registry unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	if missing := reg.Missing(taskTypes); len(missing) > 0 {
		zapLog.Warn("task types missing from activity registry", zap.Strings("taskTypes", missing))
	}
	return reg
}

// chatReplyLoggerAdapter satisfies the chat-reply worker's own Logger interface.
type chatReplyLoggerAdapter struct {
	logger.Logger
}

func (a *chatReplyLoggerAdapter) With(fields map[string]interface{}) chr.Logger {
	return &chatReplyLoggerAdapter{a.Logger.With(fields)}
}
