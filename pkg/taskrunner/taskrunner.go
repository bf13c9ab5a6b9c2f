package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IRunner определяет интерфейс для запуска фоновых задач
type IRunner interface {
	Submit(ctx context.Context, name string, taskFunc TaskFunc) (uuid.UUID, error)
	GetTask(taskID uuid.UUID) (*Task, error)
	Shutdown(ctx context.Context) error
	Close()
	CleanupTasks(age time.Duration)
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context) error

// Task представляет фоновую задачу
type Task struct {
	ID        uuid.UUID
	Name      string
	Status    TaskStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Cancel    context.CancelFunc
}

// Config содержит конфигурацию для Runner
type Config struct {
	MaxTasks int
	// CleanupInterval - период удаления завершенных задач из памяти.
	CleanupInterval time.Duration
	// CleanupAge - возраст, после которого завершенная задача удаляется.
	CleanupAge time.Duration
}

// Runner управляет фоновыми задачами внутри процесса
type Runner struct {
	tasks    map[uuid.UUID]*Task
	mu       sync.RWMutex
	maxTasks int
	closing  chan struct{}
	wg       sync.WaitGroup
}

var _ IRunner = (*Runner)(nil)

// New создает новый экземпляр Runner и запускает уборку завершенных
// задач: без нее записи о задачах копились бы в памяти бесконечно.
func New(cfg Config) *Runner {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	age := cfg.CleanupAge
	if age <= 0 {
		age = time.Hour
	}

	r := &Runner{
		tasks:    make(map[uuid.UUID]*Task),
		maxTasks: maxTasks,
		closing:  make(chan struct{}),
	}
	go r.janitor(interval, age)
	return r
}

// janitor периодически удаляет завершенные задачи; останавливается
// вместе с Runner при Shutdown или Close.
func (r *Runner) janitor(interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.CleanupTasks(age)
		}
	}
}

// Submit создает и запускает новую задачу. Задача получает независимый
// контекст: отмена родительского (HTTP-запрос уже отвечен) не прерывает
// фоновую работу. Логгер из ctx переносится в контекст задачи.
func (r *Runner) Submit(ctx context.Context, name string, taskFunc TaskFunc) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.closing:
		return uuid.UUID{}, errors.New("менеджер задач завершает работу")
	default:
	}

	activeTasks := 0
	for _, task := range r.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			activeTasks++
		}
	}
	if activeTasks >= r.maxTasks {
		return uuid.UUID{}, errors.New("превышено максимальное количество активных задач")
	}

	taskID := uuid.New()

	baseTaskCtx, cancel := context.WithCancel(context.Background())
	taskLogger := log.Ctx(ctx)
	taskCtx := taskLogger.WithContext(baseTaskCtx)

	task := &Task{
		ID:        taskID,
		Name:      name,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Cancel:    cancel,
	}
	r.tasks[taskID] = task

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		r.runTask(taskCtx, task, taskFunc)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (r *Runner) runTask(ctx context.Context, task *Task, taskFunc TaskFunc) {
	r.updateTaskStatus(ctx, task, TaskStatusRunning, "Задача запущена")

	err := taskFunc(ctx)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Str("name", task.Name).Msg("Контекст задачи был отменен")
			r.updateTaskStatus(ctx, task, TaskStatusCancelled, "Задача отменена")
		} else {
			log.Ctx(ctx).Error().Err(ctx.Err()).Str("taskID", task.ID.String()).Str("name", task.Name).Msg("Ошибка контекста задачи")
			r.updateTaskStatus(ctx, task, TaskStatusFailed, fmt.Sprintf("Ошибка контекста: %v", ctx.Err()))
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("taskID", task.ID.String()).Str("name", task.Name).Msg("Задача завершилась с ошибкой")
		r.updateTaskStatus(ctx, task, TaskStatusFailed, fmt.Sprintf("Ошибка: %v", err))
	} else {
		log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Str("name", task.Name).Msg("Задача успешно выполнена")
		r.updateTaskStatus(ctx, task, TaskStatusCompleted, "Задача успешно выполнена")
	}
}

// updateTaskStatus обновляет статус задачи
func (r *Runner) updateTaskStatus(ctx context.Context, task *Task, status TaskStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task.Status = status
	task.Message = message
	task.UpdatedAt = time.Now()

	log.Ctx(ctx).Info().
		Str("taskID", task.ID.String()).
		Str("name", task.Name).
		Str("newStatus", string(task.Status)).
		Msg("Статус задачи обновлен")
}

// GetTask возвращает информацию о задаче по ID
func (r *Runner) GetTask(taskID uuid.UUID) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("задача с ID %s не найдена", taskID)
	}

	return task, nil
}

// Shutdown перестает принимать новые задачи и ожидает завершения
// запущенных с таймаутом из ctx. Запущенные задачи не отменяются.
func (r *Runner) Shutdown(ctx context.Context) error {
	close(r.closing)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("таймаут при ожидании завершения задач")
	}
}

// Close отменяет все незавершенные задачи и ожидает их завершения
func (r *Runner) Close() {
	close(r.closing)
	r.mu.Lock()
	for _, task := range r.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			if task.Cancel != nil {
				task.Cancel()
			}
		}
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (r *Runner) CleanupTasks(age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, task := range r.tasks {
		if (task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed || task.Status == TaskStatusCancelled) &&
			now.Sub(task.UpdatedAt) > age {
			delete(r.tasks, id)
		}
	}
}
