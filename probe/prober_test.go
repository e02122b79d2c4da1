package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestProber(tolerance, ttl time.Duration) *Prober {
	return &Prober{
		client:    http.DefaultClient,
		verdicts:  xsync.NewMapOf[string, cachedVerdict](),
		timeout:   2 * time.Second,
		tolerance: tolerance,
		ttl:       ttl,
	}
}

func TestProber(t *testing.T) {
	Convey("Given a responsive origin", t, func() {
		var hits int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&hits, 1)
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("segmentdata"))
		}))
		defer server.Close()

		prober := newTestProber(time.Second, time.Minute)

		Convey("A probe reports the URL usable with a measured latency", func() {
			verdict, err := prober.Probe(context.Background(), server.URL+"/ep1.ts")

			So(err, ShouldBeNil)
			So(verdict.Usable, ShouldBeTrue)
			So(verdict.StatusCode, ShouldEqual, http.StatusPartialContent)
			So(verdict.Latency, ShouldBeGreaterThan, 0)
		})

		Convey("A second probe within the TTL does not touch the network", func() {
			_, err := prober.Probe(context.Background(), server.URL+"/ep1.ts")
			So(err, ShouldBeNil)

			_, err = prober.Probe(context.Background(), server.URL+"/ep1.ts")
			So(err, ShouldBeNil)
			So(atomic.LoadInt64(&hits), ShouldEqual, 1)
		})

		Convey("Invalidate forces the next probe back to the network", func() {
			url := server.URL + "/ep2.ts"
			_, err := prober.Probe(context.Background(), url)
			So(err, ShouldBeNil)

			prober.Invalidate(url)

			_, err = prober.Probe(context.Background(), url)
			So(err, ShouldBeNil)
			So(atomic.LoadInt64(&hits), ShouldEqual, 2)
		})
	})

	Convey("Given an origin slower than the tolerance", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(80 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		prober := newTestProber(10*time.Millisecond, time.Minute)

		Convey("The verdict marks the URL unusable even though it responded", func() {
			verdict, err := prober.Probe(context.Background(), server.URL+"/slow.ts")

			So(err, ShouldBeNil)
			So(verdict.Usable, ShouldBeFalse)
			So(verdict.StatusCode, ShouldEqual, http.StatusOK)
		})
	})

	Convey("Given an unreachable origin", t, func() {
		prober := newTestProber(time.Second, time.Minute)

		Convey("The probe resolves to unusable instead of erroring", func() {
			verdict, err := prober.Probe(context.Background(), "http://127.0.0.1:1/dead.m3u8")

			So(err, ShouldBeNil)
			So(verdict.Usable, ShouldBeFalse)
		})

		Convey("The failure verdict is cached like any other", func() {
			var dials int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt64(&dials, 1)
				// Drop the connection so the client sees a transport error.
				hj, _ := w.(http.Hijacker)
				conn, _, _ := hj.Hijack()
				_ = conn.Close()
			}))
			defer server.Close()

			url := server.URL + "/dead.ts"
			verdict, err := prober.Probe(context.Background(), url)
			So(err, ShouldBeNil)
			So(verdict.Usable, ShouldBeFalse)

			_, err = prober.Probe(context.Background(), url)
			So(err, ShouldBeNil)
			So(atomic.LoadInt64(&dials), ShouldEqual, 1)
		})
	})

	Convey("Given a probe still in flight", t, func() {
		entered := make(chan struct{}, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entered <- struct{}{}
			<-r.Context().Done()
		}))
		defer server.Close()

		fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPartialContent)
		}))
		defer fast.Close()

		prober := newTestProber(time.Second, time.Minute)

		Convey("A new probe abandons the stale one", func() {
			stale := make(chan error, 1)
			go func() {
				_, err := prober.Probe(context.Background(), server.URL+"/hanging.ts")
				stale <- err
			}()
			<-entered

			verdict, err := prober.Probe(context.Background(), fast.URL+"/quick.ts")
			So(err, ShouldBeNil)
			So(verdict.Usable, ShouldBeTrue)

			select {
			case err := <-stale:
				So(err, ShouldNotBeNil)
			case <-time.After(2 * time.Second):
				So("stale probe never returned", ShouldBeEmpty)
			}

			// The abandoned probe must not have cached a verdict.
			_, cached := prober.verdicts.Load(server.URL + "/hanging.ts")
			So(cached, ShouldBeFalse)
		})
	})
}

func TestIsManifestURL(t *testing.T) {
	Convey("Manifest detection inspects the URL path only", t, func() {
		So(IsManifestURL("http://cdn.example/play/index.m3u8"), ShouldBeTrue)
		So(IsManifestURL("http://cdn.example/play/INDEX.M3U8?token=abc"), ShouldBeTrue)
		So(IsManifestURL("http://cdn.example/mpegurl/stream"), ShouldBeTrue)
		So(IsManifestURL("http://cdn.example/seg-001.ts"), ShouldBeFalse)
		So(IsManifestURL("http://cdn.example/video.mp4?ext=.m3u8"), ShouldBeFalse)
	})
}
