package source

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/key"
)

func TestFromConfig(t *testing.T) {
	Convey("Given configured source entries", t, func() {
		viper.Set(key.SourcesAPIs, []string{
			"alpha|Alpha TV|http://alpha.example/api",
			"beta|Beta Stream|http://beta.example/api/",
		})

		Convey("Backends are built with key, name, and base URL", func() {
			backends, err := FromConfig()

			So(err, ShouldBeNil)
			So(backends, ShouldHaveLength, 2)
			So(backends[0].Key(), ShouldEqual, "alpha")
			So(backends[0].Name(), ShouldEqual, "Alpha TV")
			So(backends[1].Key(), ShouldEqual, "beta")
		})

		Convey("Lookup by key finds the backend", func() {
			backends, err := FromConfig()
			So(err, ShouldBeNil)

			backend, ok := Get(backends, "beta")
			So(ok, ShouldBeTrue)
			So(backend.Name(), ShouldEqual, "Beta Stream")

			_, ok = Get(backends, "gamma")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a malformed entry", t, func() {
		viper.Set(key.SourcesAPIs, []string{"just-a-name"})

		Convey("Configuration loading fails", func() {
			_, err := FromConfig()
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given duplicate source keys", t, func() {
		viper.Set(key.SourcesAPIs, []string{
			"alpha|One|http://one.example",
			"alpha|Two|http://two.example",
		})

		Convey("Configuration loading fails", func() {
			_, err := FromConfig()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestItemValidate(t *testing.T) {
	Convey("Given a complete catalog item", t, func() {
		item := &Item{
			SourceKey:  "alpha",
			SourceName: "Alpha",
			ID:         "42",
			Title:      "Breaking Waves",
			Episodes:   []string{"http://cdn.example/ep1.m3u8"},
		}

		Convey("Validation passes", func() {
			So(item.Validate(), ShouldBeNil)
		})

		Convey("A missing id fails validation", func() {
			item.ID = ""
			So(item.Validate(), ShouldNotBeNil)
		})

		Convey("A missing title fails validation", func() {
			item.Title = ""
			So(item.Validate(), ShouldNotBeNil)
		})

		Convey("No episodes fails validation", func() {
			item.Episodes = nil
			So(item.Validate(), ShouldNotBeNil)
		})

		Convey("An empty episode URL fails validation", func() {
			item.Episodes = []string{"http://cdn.example/ep1.m3u8", ""}
			So(item.Validate(), ShouldNotBeNil)
		})
	})
}

func TestResolutionTiers(t *testing.T) {
	Convey("Heights map onto tiers", t, func() {
		So(TierFromHeight(1080), ShouldEqual, Tier1080)
		So(TierFromHeight(2160), ShouldEqual, Tier1080)
		So(TierFromHeight(720), ShouldEqual, Tier720)
		So(TierFromHeight(480), ShouldEqual, Tier480)
		So(TierFromHeight(360), ShouldEqual, Tier360)
		So(TierFromHeight(240), ShouldEqual, Tier360)
		So(TierFromHeight(0), ShouldEqual, TierUnknown)
	})

	Convey("Labels in URLs map onto tiers", t, func() {
		So(TierFromLabel("http://cdn.example/1080p/index.m3u8"), ShouldEqual, Tier1080)
		So(TierFromLabel("http://cdn.example/hd720/index.m3u8"), ShouldEqual, Tier720)
		So(TierFromLabel("http://cdn.example/index.m3u8"), ShouldEqual, TierUnknown)
	})

	Convey("Weights are ordered by quality", t, func() {
		So(Tier1080.Weight(), ShouldBeGreaterThan, Tier720.Weight())
		So(Tier720.Weight(), ShouldBeGreaterThan, Tier480.Weight())
		So(Tier480.Weight(), ShouldBeGreaterThan, Tier360.Weight())
		So(Tier360.Weight(), ShouldBeGreaterThan, TierUnknown.Weight())
	})
}
