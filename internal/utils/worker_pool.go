package utils

import (
	"errors"
	"sync"

	"github.com/twmb/murmur3"
	"go.uber.org/zap"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// KeyedPool 按 key 分片的协程池：同一 key 的任务总是落到同一个 worker，
// 因此按提交顺序串行执行；不同 key 之间并行
type KeyedPool struct {
	queues []chan func()
	logger *zap.Logger
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewKeyedPool 创建协程池，workerNum 个 worker 各自拥有容量为 queueSize 的队列
func NewKeyedPool(workerNum, queueSize int, logger *zap.Logger) *KeyedPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	p := &KeyedPool{
		queues: make([]chan func(), workerNum),
		logger: logger,
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), queueSize)
	}
	return p
}

// Start 启动全部 worker
func (p *KeyedPool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go func(workerID int, jobs <-chan func()) {
			defer p.wg.Done()
			for job := range jobs {
				p.run(workerID, job)
			}
		}(i, q)
	}
	p.logger.Info("keyed worker pool started", zap.Int("workers", len(p.queues)))
}

func (p *KeyedPool) run(workerID int, job func()) {
	// 单个任务 panic 不能拖垮 worker
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 把任务排入 key 对应的队列；队列满时阻塞等待
func (p *KeyedPool) Submit(key string, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.queues[p.slot(key)] <- job
	return nil
}

func (p *KeyedPool) slot(key string) int {
	return int(murmur3.StringSum32(key) % uint32(len(p.queues)))
}

// Stop 拒绝新任务，执行完已排队任务后返回
func (p *KeyedPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
