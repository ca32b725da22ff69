// leakprobe soaks the disposal bridge against the in-memory object
// system and reports whether every reference came back.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/objbridge"
	"github.com/xaionaro-go/objbridge/mainloop"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/objsys/memsys"
	"github.com/xaionaro-go/observability"
)

type probeTypes struct {
	Widget objsys.TypeID
	Model  objsys.TypeID
	Rect   objsys.TypeID
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	scenarioPath := pflag.String("scenario", "", "a TOML file overriding the default soak scenario")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print statistics")
	pflag.Parse()
	if len(pflag.Args()) != 0 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	scenario := defaultScenario()
	if *scenarioPath != "" {
		var err error
		scenario, err = loadScenario(*scenarioPath)
		if err != nil {
			l.Fatal(err)
		}
	}

	sys := memsys.New()
	var tt probeTypes
	var err error
	tt.Widget, err = sys.RegisterType(ctx, "Widget", memsys.TypeOptionInitiallyUnowned(true))
	if err != nil {
		l.Fatal(err)
	}
	tt.Model, err = sys.RegisterType(ctx, "Model")
	if err != nil {
		l.Fatal(err)
	}
	tt.Rect, err = sys.RegisterType(ctx, "Rect", memsys.TypeOptionBoxed(true))
	if err != nil {
		l.Fatal(err)
	}

	loop := mainloop.New()
	serveDone := make(chan struct{})
	observability.Go(ctx, func(ctx context.Context) {
		defer cancelFn()
		defer close(serveDone)
		err := loop.Serve(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Fatal(err)
		}
	})

	b := objbridge.New(ctx, sys, objbridge.OptionSubmitter{Submitter: loop})

	l.Debugf("starting %d workers...", scenario.Workers)
	var wg sync.WaitGroup
	workersDone := make(chan struct{})
	for i := 0; i < scenario.Workers; i++ {
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			if err := runWorker(ctx, b, sys, tt, scenario); err != nil {
				l.Fatal(err)
			}
		})
	}
	observability.Go(ctx, func(ctx context.Context) {
		wg.Wait()
		close(workersDone)
	})

	t := time.NewTicker(*statsInterval)
	defer t.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			return
		case <-workersDone:
			break loop
		case <-t.C:
			printStats(b, loop, sys, l)
		}
	}

	if err := b.Sync(ctx); err != nil {
		l.Fatal(err)
	}
	printStats(b, loop, sys, l)

	stats := b.GetStats()
	live := sys.LiveCount()
	switch {
	case live != 0:
		l.Fatalf("leak: %d native instances are still alive", live)
	case stats.Unrefs.Dropped.Count != 0 || stats.BoxedFrees.Dropped.Count != 0:
		l.Fatalf(
			"leak: %d unrefs and %d boxed frees were dropped",
			stats.Unrefs.Dropped.Count, stats.BoxedFrees.Dropped.Count,
		)
	case sys.MisuseCount() != 0:
		l.Fatalf("misuse: %d invalid operations reached the native side", sys.MisuseCount())
	}
	fmt.Printf("verdict: OK, every reference came back\n")

	if err := b.Close(ctx); err != nil {
		l.Error(err)
	}
	if err := loop.Close(ctx); err != nil {
		l.Error(err)
	}
	<-serveDone
}

func runWorker(
	ctx context.Context,
	b *objbridge.Bridge,
	sys *memsys.System,
	tt probeTypes,
	scenario Scenario,
) error {
	for i := 0; i < scenario.ObjectsPerWorker; i++ {
		typ := tt.Widget
		if i%2 == 0 {
			typ = tt.Model
		}
		obj, err := b.NewObject(ctx, typ, nil)
		if err != nil {
			return err
		}
		if i%100 < scenario.DisownPercent {
			h := obj.Disown(ctx)
			// the simulated native consumer drops its reference right away
			sys.Unref(h)
			continue
		}
		obj.Release(ctx)
	}
	for i := 0; i < scenario.BoxedPerWorker; i++ {
		h, err := sys.NewBoxed(tt.Rect)
		if err != nil {
			return err
		}
		b.FreeBoxed(ctx, tt.Rect, h)
	}
	return nil
}

func printStats(
	b *objbridge.Bridge,
	loop *mainloop.Loop,
	sys *memsys.System,
	l logger.Logger,
) {
	bridgeStats, err := json.Marshal(b.GetStats())
	if err != nil {
		l.Fatal(err)
	}
	loopStats, err := json.Marshal(loop.GetStats())
	if err != nil {
		l.Fatal(err)
	}
	fmt.Printf("bridge:%s loop:%s native_live:%d\n", bridgeStats, loopStats, sys.LiveCount())
}
