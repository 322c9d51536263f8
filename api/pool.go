package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/domain"
)

// archiveJob is one batch of broadcast frames headed for the archive
// queue. Archiving is best effort and happens off the request path.
type archiveJob struct {
	retroID domain.RetroID
	frames  [][]byte
}

var (
	once           sync.Once
	jobs           chan archiveJob
	workerCount    int
	jobBuf         int
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    Storage
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownArchiver stops worker goroutines and clears shared state. It is intended for tests.
func shutdownArchiver() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	enqueueTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initArchiver(store Storage, log *log.Logger) {
	once.Do(func() {
		globalStore = store
		if log == nil {
			panic("Logger is not initialized")
		}
		globalLog = log

		workerCount = envInt("ARCHIVE_WORKERS", 8)
		jobBuf = envInt("ARCHIVE_BUFFER", 1024)
		enqueueTimeout = envDur("ARCHIVE_TIMEOUT", 60*time.Second)
		handoffTimeout = envDur("ARCHIVE_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan archiveJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go archiveWorker(i, jobs)
		}
		globalLog.Infof("frame archiver started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, enqueueTimeout, handoffTimeout)
	})
}

func archiveWorker(id int, jobCh <-chan archiveJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, enqueueTimeout)
		err := globalStore.EnqueueFrames(ctx, j.retroID, j.frames)
		cancel()

		if err != nil {
			globalLog.Errorf("archive enqueue failed, err: %v, retro: %s, count: %d, worker: %d", err, j.retroID, len(j.frames), id)
		}
	}
}

func tryEnqueueJob(job archiveJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan archiveJob, job archiveJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan archiveJob, job archiveJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
