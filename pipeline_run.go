// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

// Pipeline is an ordered, connected chain of queues for one connection's
// outbound response (spec §6): handler, zero or more filters, and a
// terminal connector, linked via Queue.nextQ/prevQ.
type Pipeline struct {
	Queues []*Queue
	stages []*Stage
	conn   *Context
}

// NewPipeline builds and opens a queue chain bound to conn, one Queue
// per stage, in the given order. The last stage must be a RoleConnector
// (spec §6 invariant: "a pipeline always terminates in a connector").
func NewPipeline(conn *Context, stages []*Stage, limits Limits) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyPipeline
	}
	if stages[len(stages)-1].Role != RoleConnector {
		return nil, ErrNotConnector
	}

	queues := make([]*Queue, len(stages))
	for i, st := range stages {
		queues[i] = NewQueue(conn, st, limits.MaxStageBuffer, limits.MaxStageBuffer/4, limits.BufSize)
	}
	for i := range queues {
		if i > 0 {
			queues[i].prevQ = queues[i-1]
		}
		if i < len(queues)-1 {
			queues[i].nextQ = queues[i+1]
		}
	}
	for i, st := range stages {
		if st.Open != nil {
			st.Open(queues[i])
		}
	}
	for i, st := range stages {
		if st.Start != nil {
			st.Start(queues[i])
		}
	}

	return &Pipeline{Queues: queues, stages: stages, conn: conn}, nil
}

// Head returns the pipeline's first (innermost/handler) queue, the one
// a handler stage Puts its outgoing packets into.
func (p *Pipeline) Head() *Queue { return p.Queues[0] }

// Pump drives every stage's OutgoingService in order until a full pass
// makes no forward progress — either every queue drained to empty, or
// every remaining queue is blocked waiting on a downstream watermark or
// ErrWouldBlock (spec §4.1's scheduling contract: "stages run to
// quiescence, never busy-loop"). A non-terminal stage with no
// OutgoingService (a handler that only Puts packets from Start) has its
// queue forwarded downstream unchanged. It returns true once the terminal
// connector has both drained and observed QueueEOF.
func (p *Pipeline) Pump() (done bool) {
	for {
		progressed := false
		for _, q := range p.Queues {
			service := q.stage.OutgoingService
			if service == nil {
				if q.nextQ == nil {
					continue
				}
				service = (*Queue).defaultOutgoingService
			}
			if q.Empty() && q.Serviced() {
				continue
			}
			if q.Flags&QueueRunning != 0 {
				continue // reentrancy guard (spec §4.1)
			}
			before := q.Count()
			beforeServiced := q.Serviced()

			q.Flags |= QueueRunning
			service(q)
			q.Flags &^= QueueRunning
			q.MarkServiced()

			p.conn.Metrics.setQueueDepth(q.Name, q.Count())

			if q.Count() != before || !beforeServiced {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	last := p.Queues[len(p.Queues)-1]
	return last.Empty() && last.EOF()
}

// Close runs every stage's Close callback in reverse order (teardown
// mirrors construction order reversed, matching the teacher's
// acquire/release discipline).
func (p *Pipeline) Close() {
	for i := len(p.stages) - 1; i >= 0; i-- {
		if p.stages[i].Close != nil {
			p.stages[i].Close(p.Queues[i])
		}
	}
}
