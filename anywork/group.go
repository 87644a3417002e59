package anywork

import "sync"

type WorkGroup interface {
	add()
	done()
	Wait()
}

type workgroup struct {
	waiter sync.WaitGroup
}

func NewGroup() WorkGroup {
	return &workgroup{}
}

func (it *workgroup) add() {
	it.waiter.Add(1)
}

func (it *workgroup) done() {
	it.waiter.Done()
}

func (it *workgroup) Wait() {
	it.waiter.Wait()
}
