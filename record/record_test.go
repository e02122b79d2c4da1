package record

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/oriontv-cli/oriontv/filesystem"
	"github.com/oriontv-cli/oriontv/source"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestPlayRecords(t *testing.T) {
	Convey("Given a playback record", t, func() {
		record := &PlayRecord{
			SourceKey:     "alpha",
			SourceName:    "Alpha",
			TitleID:       "42",
			Title:         "Breaking Waves",
			EpisodeIndex:  2,
			EpisodesTotal: 12,
			Position:      600,
			Duration:      1440,
			IntroEnd:      90,
			OutroStart:    120,
		}

		Convey("When saving the record", func() {
			err := Save(record)

			Convey("Then it can be found again", func() {
				So(err, ShouldBeNil)

				found, ok, err := Find("Breaking Waves", "alpha")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(found.EpisodeIndex, ShouldEqual, 2)
				So(found.Percentage(), ShouldAlmostEqual, 41.66, 0.01)
				So(found.IntroEnd, ShouldEqual, 90)
				So(found.OutroStart, ShouldEqual, 120)
			})

			Convey("Then an older position in the same episode does not regress it", func() {
				So(err, ShouldBeNil)

				earlier := *record
				earlier.Position = 60
				So(Save(&earlier), ShouldBeNil)

				found, ok, err := Find("Breaking Waves", "alpha")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(found.Position, ShouldEqual, 600)
			})

			Convey("Then removing it makes it unfindable", func() {
				So(err, ShouldBeNil)
				So(Remove(record), ShouldBeNil)

				_, ok, err := Find("Breaking Waves", "alpha")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestFavorites(t *testing.T) {
	Convey("Given a catalog item", t, func() {
		item := &source.Item{
			SourceKey:  "alpha",
			SourceName: "Alpha",
			ID:         "42",
			Title:      "Quiet Harbor",
			Year:       "2024",
			Episodes:   []string{"http://cdn.example/ep1.m3u8"},
		}

		Convey("When bookmarking it", func() {
			So(AddFavorite(item), ShouldBeNil)

			Convey("Then it shows up as a favorite", func() {
				ok, err := IsFavorite(item)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)

				favorites, err := Favorites()
				So(err, ShouldBeNil)
				So(favorites["Quiet Harbor (alpha)"].Year, ShouldEqual, "2024")
			})

			Convey("Then removing the bookmark clears it", func() {
				favorites, err := Favorites()
				So(err, ShouldBeNil)
				So(RemoveFavorite(favorites["Quiet Harbor (alpha)"]), ShouldBeNil)

				ok, err := IsFavorite(item)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestPlayerSettings(t *testing.T) {
	Convey("Given no persisted settings", t, func() {
		Convey("Defaults are returned", func() {
			settings, err := GetPlayerSettings("alpha", "1")
			So(err, ShouldBeNil)
			So(settings.Rate, ShouldEqual, 1.0)
			So(settings.Volume, ShouldEqual, 100)
		})
	})

	Convey("Given settings adjusted while watching one title", t, func() {
		So(SavePlayerSettings("alpha", "1", &PlayerSettings{Rate: 1.5, Volume: 80, Muted: true}), ShouldBeNil)

		Convey("They survive a reload", func() {
			settings, err := GetPlayerSettings("alpha", "1")
			So(err, ShouldBeNil)
			So(settings.Rate, ShouldEqual, 1.5)
			So(settings.Muted, ShouldBeTrue)
		})

		Convey("Another title on the same source starts from defaults", func() {
			settings, err := GetPlayerSettings("alpha", "2")
			So(err, ShouldBeNil)
			So(settings.Rate, ShouldEqual, 1.0)
			So(settings.Muted, ShouldBeFalse)
		})

		Convey("The same title on another source starts from defaults", func() {
			settings, err := GetPlayerSettings("beta", "1")
			So(err, ShouldBeNil)
			So(settings.Rate, ShouldEqual, 1.0)
			So(settings.Volume, ShouldEqual, 100)
		})
	})
}
