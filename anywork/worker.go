package anywork

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sbomtools/sbomdiff/common"
)

var (
	group       WorkGroup
	pipeline    WorkQueue
	failpipe    Failures
	errcount    Counters
	headcount   uint64
	WorkerCount int
)

type Work func()
type WorkQueue chan Work
type Failures chan string
type Counters chan uint64

func catcher(title string, identity uint64) {
	catch := recover()
	if catch != nil {
		failpipe <- fmt.Sprintf("Recovering %q #%d: %v", title, identity, catch)
	}
}

func process(fun Work, identity uint64) {
	defer catcher("process", identity)
	fun()
}

func member(identity uint64) {
	defer catcher("member", identity)
	for {
		work, ok := <-pipeline
		if !ok {
			break
		}
		process(work, identity)
		group.done()
	}
}

func watcher(failures Failures, counters Counters) {
	counter := uint64(0)
	for {
		select {
		case fail := <-failures:
			counter += 1
			fmt.Fprintln(os.Stderr, fail)
		case counters <- counter:
			counter = 0
		}
	}
}

func init() {
	group = NewGroup()
	pipeline = make(WorkQueue, 20000)
	failpipe = make(Failures)
	errcount = make(Counters)
	headcount = 0
	AutoScale()
	go watcher(failpipe, errcount)
}

func Scale() uint64 {
	return headcount
}

// AutoScale sizes the pool for CPU-bound work, as common.OptimalWorkerCount
// suggests. WorkerCount overrides when set programmatically.
func AutoScale() {
	var limit uint64
	if WorkerCount > 0 {
		limit = uint64(WorkerCount)
	} else {
		limit = uint64(common.OptimalWorkerCount())
	}

	for headcount < limit {
		go member(headcount)
		headcount += 1
	}
}

func Backlog(todo Work) {
	if todo != nil {
		group.add()
		pipeline <- todo
	}
}

// Sync waits for all backlogged work and reports collected failures.
func Sync() error {
	trials := int(Scale())
	for retries := 0; retries < trials; retries++ {
		runtime.Gosched()
	}
	group.Wait()
	count := <-errcount
	if count > 0 {
		return fmt.Errorf("There has been %d failures. See messages above.", count)
	}
	return nil
}
