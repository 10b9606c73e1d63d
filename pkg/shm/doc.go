// Package shm provides a bounded FIFO print queue shared by unrelated processes
// through a System V shared memory segment, coordinated by three named counting
// semaphores (mutex, empty slots, full slots).
//
// The package owns every byte of the shared layout. Callers hold a Region
// handle and a SemaphoreSet and interact with the contents only through
// Queue.Push and Queue.Pop; no pointer into the segment escapes.
//
// Example usage:
//
//	sems, err := shm.OpenSemaphoreSet(shm.DefaultSemaphoreNames("printq"))
//	// ...
//	region, err := shm.AttachRegion(shm.DefaultSegmentKey, shm.DefaultCapacity)
//	// ...
//	q, err := shm.NewQueue(region, sems)
//	err = q.Push(ctx, shm.Request{ClientID: 42, FileName: "FILE_42_1", FileSize: 1000})
//
// A push waits on the empty-slot semaphore before taking the mutex, and a pop
// waits on the full-slot semaphore before taking the mutex, so the mutex is
// never held across a wait for space or data.
//
// Limitation: the mutex is a plain counting semaphore with no owner. A process
// killed while inside the critical section leaves it taken and every other
// participant blocks forever. There is no robust-mutex recovery; the segment
// and semaphores must be removed (printq cleanup) and the run restarted.
//
// Instrumentation uses OpenTelemetry; without WithMeter/WithTracer the no-op
// providers are used.
package shm
