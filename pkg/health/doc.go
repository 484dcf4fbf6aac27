/*
Package health provides liveness checking for the tier store's
storage backends.

A backend can fail independently of the process hosting it: a bbolt
file's disk can fill up or its mount can go stale, or (for a
network-reachable remote backend) the endpoint can stop responding.
This package implements four checker strategies — Backend (a Flush
call on the storage backend itself, the default), HTTP, TCP, and
Exec — plus a Monitor that runs one on a ticker and tracks consecutive
failure/success counts, publishing a backend.unavailable or
backend.recovered event on each transition.

# Architecture

	┌──────────────────────────────────────────────────────┐
	│                  Checker Interface                    │
	│  • Check(ctx) Result                                  │
	│  • Type() CheckType                                   │
	└────────┬───────────────────────────────────────────┘
	         │
	    ┌────┴──────┬──────────┐
	    ▼           ▼          ▼
	┌────────┐  ┌───────┐  ┌────────┐
	│  HTTP  │  │  TCP  │  │  Exec  │
	│Checker │  │Checker│  │Checker │
	└────────┘  └───────┘  └────────┘
	     │          │           │
	     ▼          ▼           ▼
	  GET /      Dial        Run local
	  healthz    :port       command
	         │
	         ▼
	┌──────────────────────────────┐
	│           Monitor              │
	│  ticker → Check → Status.Update│
	│  transition → events.Broker    │
	└──────────────────────────────┘

# Choosing a Checker

  - HTTPChecker: a backend that exposes its own liveness endpoint (a
    remote object-store gateway, for example).
  - TCPChecker: a backend reachable over a bare TCP port with no
    richer protocol worth probing.
  - ExecChecker: a local durable backend whose health is really a
    question about the machine underneath it (disk space, mount
    state) — run a command and check its exit code.

The coordinator runs a monitor for every tier, HeapBackend included;
a HeapBackend gets the default BackendChecker, and since its Flush
never fails it never reports unavailable.

# Usage

	checker := health.NewExecChecker([]string{"df", "-h", "/data/cold"})
	monitor := health.NewMonitor("cold", "bolt", checker, health.DefaultConfig(), broker)
	monitor.Start()
	defer monitor.Stop()

# Failure Detection

A single failed check does not flip a backend's status: Status.Update
requires Config.Retries consecutive failures before marking unhealthy,
and a single success clears the counter and restores healthy
immediately — asymmetric on purpose, since a flapping backend should
recover fast but only go down on a sustained problem.

# See Also

  - pkg/reconciler - corrects drift a backend outage can leave behind
  - pkg/events - how backend.unavailable/backend.recovered are consumed
*/
package health
