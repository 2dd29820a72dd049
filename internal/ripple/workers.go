package ripple

import "sync"

// rowBand is a half-open range of rows owned by one worker.
type rowBand struct{ y0, y1 int }

// workerPool runs persistent goroutines that step disjoint row bands. Each
// step is published by bumping a generation counter and waited on until every
// worker reports back, so no band outlives its step.
type workerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	bands   []rowBand
	height  int
	job     stepJob
	gen     int
	pending int
	stopped bool
	wg      sync.WaitGroup
}

// assignBands splits height rows into at most workers contiguous bands.
func assignBands(workers, height int) []rowBand {
	if workers < 1 {
		workers = 1
	}
	if workers > height {
		workers = height
	}
	rowsPer := (height + workers - 1) / workers
	bands := make([]rowBand, 0, workers)
	for y := 0; y < height; y += rowsPer {
		end := y + rowsPer
		if end > height {
			end = height
		}
		bands = append(bands, rowBand{y0: y, y1: end})
	}
	return bands
}

func newWorkerPool(workers, height int) *workerPool {
	p := &workerPool{bands: assignBands(workers, height), height: height}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(len(p.bands))
	for i := range p.bands {
		go p.loop(i)
	}
	return p
}

// run publishes job to every worker and blocks until all bands are written.
func (p *workerPool) run(job stepJob) {
	p.mu.Lock()
	p.job = job
	p.pending = len(p.bands)
	p.gen++
	p.cond.Broadcast()
	for p.pending > 0 {
		p.cond.Wait()
	}
	p.job = stepJob{}
	p.mu.Unlock()
}

func (p *workerPool) loop(index int) {
	defer p.wg.Done()
	band := p.bands[index]
	lastGen := 0
	p.mu.Lock()
	for {
		for p.gen == lastGen && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		lastGen = p.gen
		job := p.job
		p.mu.Unlock()

		job.rows(band.y0, band.y1)

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.cond.Broadcast()
		}
	}
}

// close stops the workers and waits for them to exit.
func (p *workerPool) close() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
