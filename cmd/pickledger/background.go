package main

import "sync"

// background tracks goroutines that must finish before shared resources
// such as the store are closed.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (b *background) Wait() {
	b.wg.Wait()
}
