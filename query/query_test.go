package query

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/oriontv-cli/oriontv/filesystem"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestQueryHistory(t *testing.T) {
	Convey("Given a few remembered queries", t, func() {
		So(Forget(), ShouldBeNil)
		So(Remember("breaking waves"), ShouldBeNil)
		So(Remember("quiet harbor"), ShouldBeNil)
		So(Remember("storm chasers"), ShouldBeNil)

		Convey("The most recent query comes first", func() {
			queries, err := Get()
			So(err, ShouldBeNil)
			So(queries[0], ShouldEqual, "storm chasers")
		})

		Convey("Remembering an existing query moves it to the front", func() {
			So(Remember("Breaking Waves"), ShouldBeNil)

			queries, err := Get()
			So(err, ShouldBeNil)
			So(queries, ShouldHaveLength, 3)
			So(queries[0], ShouldEqual, "Breaking Waves")
		})

		Convey("Blank queries are ignored", func() {
			So(Remember("   "), ShouldBeNil)

			queries, err := Get()
			So(err, ShouldBeNil)
			So(queries, ShouldHaveLength, 3)
		})

		Convey("Suggestions fuzzily match the history", func() {
			suggestions, err := Suggest("braking")
			So(err, ShouldBeNil)
			So(suggestions, ShouldContain, "breaking waves")

			suggestions, err = Suggest("zzzz")
			So(err, ShouldBeNil)
			So(suggestions, ShouldBeEmpty)
		})

		Convey("Forget wipes the history", func() {
			So(Forget(), ShouldBeNil)

			queries, err := Get()
			So(err, ShouldBeNil)
			So(queries, ShouldBeEmpty)
		})
	})
}
