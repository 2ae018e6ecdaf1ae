package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/tonearm/internal/adapter"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/search"
)

var (
	lsOffline   bool
	addNoCache  bool
	rmYes       bool
	playShuffle bool
	playRepeat  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the catalog and cache every song for offline playback",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the songs in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runLs,
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Download a song from a YouTube URL into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var rmCmd = &cobra.Command{
	Use:   "rm <song>",
	Short: "Remove a song from the catalog and the offline cache",
	Long: `Remove a song by id or by a fuzzy match on "title - artist".
If the server cannot delete the song the offline copy is kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var playCmd = &cobra.Command{
	Use:   "play [song]",
	Short: "Play the catalog without the interactive view",
	Long: `Play the catalog starting at the song matching the query, or at the
newest song when no query is given. Runs until interrupted.`,
	RunE: runPlay,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete every song cached for offline playback",
	Args:  cobra.NoArgs,
	RunE:  runClearCache,
}

func init() {
	rootCmd.AddCommand(clearCacheCmd)

	lsCmd.Flags().BoolVar(&lsOffline, "offline", false, "list only what the offline cache holds")
	addCmd.Flags().BoolVar(&addNoCache, "no-cache", false, "do not cache the song for offline playback")
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "do not ask for confirmation")
	playCmd.Flags().BoolVar(&playShuffle, "shuffle", false, "shuffle the queue")
	playCmd.Flags().StringVar(&playRepeat, "repeat", "off", "repeat mode: off, queue, track")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.library.RefreshCatalog(cmd.Context())
	if res.FromCache {
		fmt.Printf("Catalog unreachable (%v); %d songs available offline\n", res.Cause, len(res.Songs))
		return nil
	}

	fmt.Printf("Caching %d songs...\n", len(res.Songs))
	a.library.Wait()

	cached := a.queries.CachedIDs(res.Songs)
	fmt.Printf("%d songs, %d available offline\n", len(res.Songs), len(cached))
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var songs []domain.Song
	if lsOffline {
		songs, err = a.queries.StoredSongs()
		if err != nil {
			return err
		}
	} else {
		res := a.library.RefreshCatalog(cmd.Context())
		if res.FromCache {
			fmt.Fprintf(os.Stderr, "catalog unreachable, showing offline songs: %v\n", res.Cause)
		}
		songs = res.Songs
	}

	printSongs(os.Stdout, songs, a.queries.CachedIDs(songs))
	return nil
}

// printSongs writes a table of songs, marking the ones cached offline
func printSongs(w io.Writer, songs []domain.Song, cached map[string]bool) {
	if len(songs) == 0 {
		fmt.Fprintln(w, "No songs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tTITLE\tARTIST\tLENGTH\tID")
	for _, s := range songs {
		mark := " "
		if cached[s.ID] {
			mark = "●"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, s.Title, s.Artist, s.FormattedDuration(), s.ID)
	}
	tw.Flush()
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	preview, err := a.library.Preview(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Downloading %s - %s (%s)...\n", preview.Title, preview.Artist, domain.FormatClock(preview.Duration))

	song, err := a.library.Download(ctx, preview)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s [%s]\n", song.DisplayTitle(), song.ID)

	if addNoCache {
		return nil
	}
	if err := a.library.CacheSong(ctx, song); err != nil {
		fmt.Fprintf(os.Stderr, "warning: not cached for offline playback: %v\n", err)
	}
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	song, err := findSong(ctx, a, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if !rmYes {
		ok, err := confirm(os.Stdin, fmt.Sprintf("Remove %s?", song.DisplayTitle()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled")
			return nil
		}
	}

	if err := a.library.RemoveSong(ctx, song.ID); err != nil {
		return fmt.Errorf("%w (offline copy kept)", err)
	}
	fmt.Printf("Removed %s\n", song.DisplayTitle())
	return nil
}

// findSong resolves a query against the refreshed catalog
func findSong(ctx context.Context, a *app, query string) (domain.Song, error) {
	songs := a.library.RefreshCatalog(ctx).Songs
	i, ok := search.Best(songs, query)
	if !ok {
		return domain.Song{}, fmt.Errorf("%w: no song matches %q", domain.ErrSongNotFound, query)
	}
	return songs[i], nil
}

// confirm asks a yes/no question on a terminal. Without a terminal it refuses
// rather than guess.
func confirm(in *os.File, question string) (bool, error) {
	if !term.IsTerminal(int(in.Fd())) {
		return false, errors.New("refusing to remove without a terminal; pass --yes")
	}
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read input: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// parseRepeat maps the --repeat flag to a mode
func parseRepeat(s string) (domain.RepeatMode, error) {
	switch strings.ToLower(s) {
	case "", "off":
		return domain.RepeatOff, nil
	case "queue", "all":
		return domain.RepeatQueue, nil
	case "track", "one":
		return domain.RepeatTrack, nil
	default:
		return domain.RepeatOff, fmt.Errorf("%w: unknown repeat mode %q", domain.ErrValidationFailed, s)
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	repeat, err := parseRepeat(playRepeat)
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	songs := a.library.RefreshCatalog(ctx).Songs
	if len(songs) == 0 {
		return errors.New("no songs to play")
	}

	start := 0
	if len(args) > 0 {
		query := strings.Join(args, " ")
		i, ok := search.Best(songs, query)
		if !ok {
			return fmt.Errorf("%w: no song matches %q", domain.ErrSongNotFound, query)
		}
		start = i
	}

	a.session.SetShuffle(playShuffle)
	a.session.SetRepeat(repeat)

	ctrl, err := a.startPlayer()
	if err != nil {
		return err
	}
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.Select(start); err != nil {
		return err
	}

	var nowPlaying string
	active := false
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case st := <-updates:
			if st.Notice != nil && st.Notice.Kind == domain.NoticeError {
				fmt.Fprintf(os.Stderr, "%s\n", st.Notice.Text)
			}
			if st.State == domain.StateIdle {
				if active {
					return fmt.Errorf("%w: playback stopped", domain.ErrPlaybackFailed)
				}
				continue
			}
			active = true
			if st.State == domain.StatePlaying && st.Song != nil && st.Song.ID != nowPlaying {
				nowPlaying = st.Song.ID
				fmt.Printf("▶ %s [%s, %s]\n", st.Song.DisplayTitle(), st.Song.FormattedDuration(), st.Source)
			}
		}
	}
}

func runClearCache(cmd *cobra.Command, args []string) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dir, err := adapter.ExpandHome(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	cfg.Cache.Dir = dir

	if err := adapter.ClearCache(cfg); err != nil {
		return err
	}
	fmt.Println("Offline cache cleared")
	return nil
}
