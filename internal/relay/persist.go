package relay

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"

	"codesync/internal/middleware"
	"codesync/internal/models"
	"codesync/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// editJob is one accepted edit awaiting durable append. origin is kept
// so persistence failures surface on the connection that sent the edit.
type editJob struct {
	origin *Conn
	edit   *models.CodeEdit
}

// Pipeline appends accepted edits to the store off the broadcast path.
// Jobs for the same snippet always route to the same worker and are
// enqueued while the hub mutex is held, so a snippet's history lands in
// the order its edits were accepted; edits on different snippets
// persist concurrently.
type Pipeline struct {
	gateway Gateway
	queues  []chan editJob
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPipeline(gateway Gateway, workers, queueSize int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pipeline{
		gateway: gateway,
		queues:  make([]chan editJob, workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan editJob, queueSize)
	}
	return p
}

// Start spawns one goroutine per queue.
func (p *Pipeline) Start() {
	log.Printf("starting persistence pipeline with %d workers", len(p.queues))
	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.worker(i, queue)
	}
}

// Enqueue routes the edit to its snippet's worker. It never blocks:
// the caller holds the hub mutex, so a full shard queue surfaces a
// retriable error frame to the sender instead of stalling the relay.
func (p *Pipeline) Enqueue(origin *Conn, edit *models.CodeEdit) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		if origin != nil {
			origin.sendError("edit not persisted: relay shutting down")
		}
		return
	}

	select {
	case p.queues[p.shard(edit.SnippetID)] <- editJob{origin: origin, edit: edit}:
	default:
		log.Printf("persistence queue full, dropping edit for snippet %s", edit.SnippetID)
		if origin != nil {
			origin.sendJSON(models.ErrorFrame{Error: "edit not persisted: relay overloaded", Retriable: true})
		}
	}
}

// Depth returns the number of pending jobs across all queues.
func (p *Pipeline) Depth() int {
	depth := 0
	for _, queue := range p.queues {
		depth += len(queue)
	}
	return depth
}

// Shutdown stops accepting jobs, drains the queues, and waits for the
// workers to finish.
func (p *Pipeline) Shutdown() {
	log.Println("shutting down persistence pipeline...")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	log.Println("persistence pipeline shutdown complete")
}

func (p *Pipeline) shard(snippetID string) int {
	h := fnv.New32a()
	h.Write([]byte(snippetID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *Pipeline) worker(id int, queue chan editJob) {
	defer p.wg.Done()

	for job := range queue {
		p.process(job)
	}
	log.Printf("persistence worker %d drained", id)
}

// process appends one edit and maps failures onto error frames. The
// broadcast already happened; nothing here unwinds it. Conflicts are
// surfaced as retriable and left to the client, never retried here.
func (p *Pipeline) process(job editJob) {
	ctx, span := middleware.StartSpan(context.Background(), "Pipeline.AppendEdit",
		attribute.String("snippet.id", job.edit.SnippetID),
		attribute.String("user.id", job.edit.UserID),
	)
	defer span.End()

	err := p.gateway.AppendEdit(ctx, job.edit)
	if err == nil {
		return
	}

	middleware.AddSpanError(ctx, err)
	log.Printf("append edit for snippet %s: %v", job.edit.SnippetID, err)
	if job.origin == nil {
		return
	}

	switch {
	case errors.Is(err, repository.ErrConflict):
		job.origin.sendJSON(models.ErrorFrame{Error: "edit not persisted: concurrent modification", Retriable: true})
	case errors.Is(err, repository.ErrValidation):
		job.origin.sendJSON(models.ErrorFrame{Error: "edit not persisted: payload rejected"})
	default:
		job.origin.sendJSON(models.ErrorFrame{Error: "edit not persisted"})
	}
}
