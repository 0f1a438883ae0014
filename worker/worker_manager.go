package worker

import (
	"net"

	"github.com/realDragonium/Slumber/config"
	log "github.com/sirupsen/logrus"
)

type WorkerManager interface {
	Start()
	Stop()
	Workers() int
}

func NewWorkerManager(cfg config.WorkerConfig, reqCh <-chan net.Conn, services Services) WorkerManager {
	return &workerManager{
		cfg:      cfg,
		reqCh:    reqCh,
		services: services,
	}
}

type workerManager struct {
	cfg      config.WorkerConfig
	reqCh    <-chan net.Conn
	services Services
	workers  []chan<- struct{}
}

func (manager *workerManager) Start() {
	n := manager.cfg.Workers
	if n < 1 {
		n = 1
	}
	if manager.services.Dispatcher == nil {
		upstream := Target{
			Address:     manager.cfg.ProxyTo,
			SendProxyV2: manager.cfg.SendProxyV2,
			DialTimeout: manager.cfg.DialTimeout,
		}
		manager.services.Dispatcher = NewDispatcher(manager.services.Server, manager.cfg.Plan, upstream, manager.cfg.Forge)
	}
	for i := 0; i < n; i++ {
		wrk := NewWorker(manager.cfg, manager.reqCh, manager.services)
		go func(bw BasicWorker) {
			bw.Work()
		}(wrk)
		manager.workers = append(manager.workers, wrk.CloseCh())
	}
	log.Infof("Running %v worker(s)", n)
}

func (manager *workerManager) Stop() {
	for _, closeCh := range manager.workers {
		close(closeCh)
	}
	manager.workers = nil
}

func (manager *workerManager) Workers() int {
	return len(manager.workers)
}
