package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/decred/slog"

	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/indexer"
	"github.com/happybigmtn/trust-bazaar/rpc"
	"github.com/happybigmtn/trust-bazaar/sequencer"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	"github.com/happybigmtn/trust-bazaar/vm/modules/divergence"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

var (
	backend = slog.NewBackend(os.Stdout)

	log     = backend.Logger("NODE")
	bzarLog = backend.Logger("BZAR")
	dvrgLog = backend.Logger("DVRG")
	syspLog = backend.Logger("SYSP")
	vmLog   = backend.Logger("VM")
	seqrLog = backend.Logger("SEQR")
	rpcsLog = backend.Logger("RPCS")
	evntLog = backend.Logger("EVNT")
	idxrLog = backend.Logger("IDXR")
	storLog = backend.Logger("STOR")
)

func init() {
	bazaar.UseLogger(bzarLog)
	divergence.UseLogger(dvrgLog)
	system.UseLogger(syspLog)
	vm.UseLogger(vmLog)
	sequencer.UseLogger(seqrLog)
	rpc.UseLogger(rpcsLog)
	events.UseLogger(evntLog)
	indexer.UseLogger(idxrLog)
	storage.UseLogger(storLog)
}

var subsystemLoggers = map[string]slog.Logger{
	"NODE": log,
	"BZAR": bzarLog,
	"DVRG": dvrgLog,
	"SYSP": syspLog,
	"VM":   vmLog,
	"SEQR": seqrLog,
	"RPCS": rpcsLog,
	"EVNT": evntLog,
	"IDXR": idxrLog,
	"STOR": storLog,
}

// setLogLevels sets every subsystem to level, one of trace, debug, info,
// warn, error, critical or off.
func setLogLevels(level string) error {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(lvl)
	}
	return nil
}

func subsystems() []string {
	out := make([]string, 0, len(subsystemLoggers))
	for s := range subsystemLoggers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
