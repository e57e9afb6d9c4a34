// Package safe_close coordinates shutdown of long-running components
// Package safe_close 协调长期运行组件的关闭
package safe_close

import "sync"

// SafeClose broadcasts one close signal to every attached worker and waits for them
// SafeClose 向所有已注册的工作函数广播一次关闭信号并等待其退出
type SafeClose struct {
	once    sync.Once
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach runs fn in its own goroutine; fn must call done once it has released its resources
// Attach 在独立协程中运行 fn，fn 释放资源后必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	var once sync.Once
	go fn(func() { once.Do(s.wg.Done) }, s.closeCh)
}

// SendCloseSignal closes the signal channel; the first non-nil err is kept
// SendCloseSignal 关闭信号通道，保留第一个非 nil 错误
func (s *SafeClose) SendCloseSignal(err error) {
	s.mu.Lock()
	if s.err == nil && err != nil {
		s.err = err
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.closeCh) })
}

// CloseSignal 返回关闭信号通道
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeCh
}

// WaitClosed 等待所有工作函数退出，返回触发关闭的错误
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
