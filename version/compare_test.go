package version

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompare(t *testing.T) {
	Convey("Semantic versions compare component-wise", t, func() {
		cases := []struct {
			a, b string
			want int
		}{
			{"1.0.0", "1.0.0", 0},
			{"v1.0.0", "1.0.0", 0},
			{"1.0.1", "1.0.0", 1},
			{"1.1.0", "1.0.9", 1},
			{"2.0.0", "1.9.9", 1},
			{"0.1.0", "0.2.0", -1},
		}

		for _, c := range cases {
			got, err := Compare(c.a, c.b)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, c.want)
		}
	})

	Convey("Garbage versions error out", t, func() {
		_, err := Compare("not-a-version", "1.0.0")
		So(err, ShouldNotBeNil)
	})
}
