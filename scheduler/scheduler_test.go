package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestScheduler(t *testing.T) {
	Convey("Given a single-slot scheduler", t, func() {
		s := New()

		Convey("A scheduled task fires once", func() {
			var fired atomic.Int32
			s.Schedule(10*time.Millisecond, func() {
				fired.Add(1)
			})
			So(s.Pending(), ShouldBeTrue)

			time.Sleep(50 * time.Millisecond)
			So(fired.Load(), ShouldEqual, 1)
			So(s.Pending(), ShouldBeFalse)
		})

		Convey("Rescheduling cancels the pending task", func() {
			var first, second atomic.Int32
			s.Schedule(20*time.Millisecond, func() {
				first.Add(1)
			})
			s.Schedule(10*time.Millisecond, func() {
				second.Add(1)
			})

			time.Sleep(60 * time.Millisecond)
			So(first.Load(), ShouldEqual, 0)
			So(second.Load(), ShouldEqual, 1)
		})

		Convey("Cancel drops the pending task", func() {
			var fired atomic.Int32
			s.Schedule(10*time.Millisecond, func() {
				fired.Add(1)
			})
			s.Cancel()
			So(s.Pending(), ShouldBeFalse)

			time.Sleep(40 * time.Millisecond)
			So(fired.Load(), ShouldEqual, 0)
		})

		Convey("Cancel without a pending task is a no-op", func() {
			So(func() { s.Cancel() }, ShouldNotPanic)
			So(s.Pending(), ShouldBeFalse)
		})
	})
}
