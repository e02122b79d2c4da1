package record

import (
	"fmt"
	"time"

	"github.com/metafates/gache"

	"github.com/oriontv-cli/oriontv/filesystem"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/where"
)

// Favorite is a bookmarked title.
type Favorite struct {
	SourceKey  string `json:"source_key"`
	SourceName string `json:"source_name"`
	TitleID    string `json:"title_id"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	TypeName   string `json:"type_name"`
	AddedAt    int64  `json:"added_at"`
}

func (f *Favorite) encode() string {
	return fmt.Sprintf("%s (%s)", f.Title, f.SourceKey)
}

func (f *Favorite) String() string {
	if f.Year == "" {
		return f.Title
	}
	return fmt.Sprintf("%s (%s)", f.Title, f.Year)
}

var favoriteCacher = gache.New[map[string]*Favorite](
	&gache.Options{
		Path:       where.Favorites(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Favorites returns every bookmarked title.
func Favorites() (map[string]*Favorite, error) {
	cached, expired, err := favoriteCacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Favorite), nil
	}
	return cached, nil
}

// AddFavorite bookmarks a catalog item.
func AddFavorite(item *source.Item) error {
	favorites, err := Favorites()
	if err != nil {
		return err
	}

	favorite := &Favorite{
		SourceKey:  item.SourceKey,
		SourceName: item.SourceName,
		TitleID:    item.ID,
		Title:      item.Title,
		Year:       item.Year,
		TypeName:   item.TypeName,
		AddedAt:    time.Now().Unix(),
	}

	favorites[favorite.encode()] = favorite
	return favoriteCacher.Set(favorites)
}

// RemoveFavorite drops a bookmark.
func RemoveFavorite(favorite *Favorite) error {
	favorites, err := Favorites()
	if err != nil {
		return err
	}

	delete(favorites, favorite.encode())
	return favoriteCacher.Set(favorites)
}

// IsFavorite reports whether a catalog item is bookmarked.
func IsFavorite(item *source.Item) (bool, error) {
	favorites, err := Favorites()
	if err != nil {
		return false, err
	}
	_, ok := favorites[fmt.Sprintf("%s (%s)", item.Title, item.SourceKey)]
	return ok, nil
}
