package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/internal/util"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/require"
)

func TestCycleSchedulerSendsTicks(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.PollConfig.ScanIntervalSeconds = 1

	as := pactor.NewActorSystem()
	defer as.Shutdown()

	var ticks atomic.Int32
	pid := as.Root.Spawn(pactor.PropsFromFunc(func(ctx pactor.Context) {
		if _, ok := ctx.Message().(domain.CycleTick); ok {
			ticks.Add(1)
		}
	}))

	scheduler, err := startCycleScheduler(&cfg, as.Root, pid)
	require.NoError(t, err)
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
