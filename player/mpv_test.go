package player

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizeMediaTarget(t *testing.T) {
	Convey("Media targets are validated before reaching mpv", t, func() {
		Convey("http and https URLs pass through", func() {
			url, err := sanitizeMediaTarget("https://cdn.example/index.m3u8")
			So(err, ShouldBeNil)
			So(url, ShouldEqual, "https://cdn.example/index.m3u8")
		})

		Convey("Flag-shaped targets are rejected", func() {
			_, err := sanitizeMediaTarget("--script=evil.lua")
			So(err, ShouldNotBeNil)
		})

		Convey("Control characters are rejected", func() {
			_, err := sanitizeMediaTarget("http://cdn.example/a\nb")
			So(err, ShouldNotBeNil)
		})

		Convey("Non-http schemes are rejected", func() {
			_, err := sanitizeMediaTarget("ftp://cdn.example/video.mp4")
			So(err, ShouldNotBeNil)
		})

		Convey("Bare paths are cleaned as local files", func() {
			path, err := sanitizeMediaTarget("./videos/../movie.mp4")
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "movie.mp4")
		})
	})
}

func TestSanitizeTitle(t *testing.T) {
	Convey("Titles are flattened to a single safe line", t, func() {
		So(sanitizeTitle("Breaking\nWaves\t S1"), ShouldEqual, "Breaking Waves  S1")
		So(sanitizeTitle("  padded  "), ShouldEqual, "padded")
	})
}

func TestStatusPercentage(t *testing.T) {
	Convey("Completion percentage handles unknown durations", t, func() {
		So(Status{Position: 30, Duration: 120}.Percentage(), ShouldEqual, 25)
		So(Status{Position: 30}.Percentage(), ShouldEqual, 0)
	})
}
