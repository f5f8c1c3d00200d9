// Package queue is an in-process delayed priority queue drained by a bounded
// pool of workers.
//
// Tasks carry an ID, a priority and a RunAt time. A task is not handed to a
// worker before RunAt; among due tasks, higher priority goes first, then the
// earlier RunAt, then insertion order. Enqueue never blocks. An ID can be
// pending at most once, and pending tasks can be removed before they run.
//
//	q, err := queue.New("email", handle, queue.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
//	g.Go(q.Run(ctx))
//	_ = q.Enqueue(queue.Task{ID: id, Priority: 2, RunAt: time.Now().Add(time.Second)})
//
// Stop stops handing out tasks and waits for running handlers. Handlers get a
// context that is not canceled by Stop, so in-flight work can finish; tasks
// still pending at that point are dropped and must be re-enqueued from durable
// state by the owner.
package queue
