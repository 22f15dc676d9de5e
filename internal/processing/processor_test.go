package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/librarr/internal/analysis"
	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/download/mocks"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/library"
)

const heatRelease = "Heat.1995.1080p.BluRay.x264"

func TestProcess_Movie(t *testing.T) {
	f := setup(t)
	heat := f.addMovie(t, "Heat", 1995)
	sub := f.bus.SubscribeAll(100)
	d := f.addDownload(t, heatRelease,
		heatRelease+".mkv", heatRelease+"-sample.mkv", heatRelease+".nfo")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, d.ID, res.DownloadID)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 0, res.FilesFailed)
	assert.Equal(t, 1, res.FilesSkipped, "the sample")
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Organized)

	dst := filepath.Join(f.movies.Root, "Heat (1995)", "Heat (1995).mkv")
	assert.FileExists(t, dst)
	assert.FileExists(t, filepath.Join(d.Path, heatRelease+".mkv"), "copy keeps the download for seeding")

	stored, err := f.downloads.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, stored.Status)

	movie, err := f.lib.GetMovie(heat.ID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
	assert.Equal(t, library.StatusDownloaded, movie.Status)

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	require.Len(t, records, 2, "the nfo gets no record")
	for _, r := range records {
		assert.True(t, r.Processed)
		switch r.Target.(type) {
		case library.MovieTarget:
			require.NotNil(t, r.LibraryFileID)
			file, err := f.lib.GetFile(*r.LibraryFileID)
			require.NoError(t, err)
			assert.Equal(t, dst, file.Path)
			assert.True(t, file.Organized)
			assert.Equal(t, "mkv", file.Container)
			assert.Equal(t, "1080p", file.Resolution)
			assert.Equal(t, "x264", file.VideoCodec)
		case library.Sample:
			assert.Nil(t, r.LibraryFileID)
			assert.False(t, r.SkipDownload)
		default:
			t.Errorf("unexpected target %#v", r.Target)
		}
	}

	counts, err := f.queue.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[analysis.StatusQueued])

	types := drain(sub)
	assert.Contains(t, types, events.EventProcessingStarted)
	assert.Contains(t, types, events.EventFileOrganized)
	assert.Contains(t, types, events.EventProcessingFinished)
}

func TestProcess_CompletedIsNoop(t *testing.T) {
	f := setup(t)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")

	first, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, download.StatusCompleted, first.Status)

	again, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, again.Status)
	assert.Zero(t, again.FilesProcessed)
	assert.NotEqual(t, first.RunID, again.RunID)

	_, total, err := f.lib.ListFiles(library.FileFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProcess_DownloadNotFound(t *testing.T) {
	f := setup(t)
	_, err := f.proc.Process(context.Background(), 999, Options{})
	assert.ErrorIs(t, err, download.ErrNotFound)
}

func TestProcess_SampleExclusion(t *testing.T) {
	f := setup(t)
	show := f.addShow(t, "Show", 0)
	f.addEpisode(t, show, 1, 1, "Pilot", library.StatusWanted)
	d := f.addDownload(t, "Show.S01E01.1080p", "Show.S01E01.1080p.mkv", "Show.S01E01.1080p-sample.mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	var sample *download.MatchRecord
	for _, r := range records {
		if r.Target == (library.Sample{}) {
			sample = r
		}
	}
	require.NotNil(t, sample)
	assert.False(t, sample.SkipDownload, "kept for seeding")
	assert.True(t, sample.Processed)
	assert.Nil(t, sample.LibraryFileID)

	files, _, err := f.lib.ListFiles(library.FileFilter{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(f.tv.Root, "Show", "Season 01", "Show - S01E01 - Pilot.mkv"), files[0].Path)
	assert.NoFileExists(t, filepath.Join(f.tv.Root, "Show", "Season 01", "Show.S01E01.1080p-sample.mkv"))
}

func TestProcess_ForceReprocess(t *testing.T) {
	f := setup(t)
	show := f.addShow(t, "Breaking Bad", 2008)
	e5 := f.addEpisode(t, show, 1, 5, "Gray Matter", library.StatusWanted)
	e6 := f.addEpisode(t, show, 1, 6, "Crazy Handful of Nothin'", library.StatusDownloading)
	d := f.addDownload(t, "Breaking.Bad.S01E05.720p", "Breaking.Bad.S01E05.720p.mkv")

	// An earlier, wrong link to the next episode.
	stale := &download.MatchRecord{
		DownloadID: d.ID,
		FileIndex:  0,
		FilePath:   filepath.Join(d.Path, "Breaking.Bad.S01E05.720p.mkv"),
		Target:     library.EpisodeTarget{EpisodeID: e6.ID, ShowID: show.ID, ShowName: show.Name, Season: 1, Episode: 6},
		MatchType:  download.MatchManual,
	}
	require.NoError(t, f.matches.Create(stale))

	res, err := f.proc.Process(context.Background(), d.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)

	status, err := f.lib.GetStatus(library.Key{Kind: library.KindEpisode, ID: e6.ID})
	require.NoError(t, err)
	assert.Equal(t, library.StatusWanted, status, "reverted before the stale match was cleared")

	status, err = f.lib.GetStatus(library.Key{Kind: library.KindEpisode, ID: e5.ID})
	require.NoError(t, err)
	assert.Equal(t, library.StatusDownloaded, status)

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, download.MatchAuto, records[0].MatchType)
	target, ok := records[0].Target.(library.EpisodeTarget)
	require.True(t, ok)
	assert.Equal(t, e5.ID, target.EpisodeID)

	assert.FileExists(t, filepath.Join(f.tv.Root, "Breaking Bad", "Season 01", "Breaking Bad - S01E05 - Gray Matter.mkv"))

	// Forcing a completed download matches again; the episode is already
	// downloaded so the file is skipped.
	res, err = f.proc.Process(context.Background(), d.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.FilesSkipped)
}

func TestProcess_OrganizeDisabled(t *testing.T) {
	f := setup(t)
	f.movies.Organize = false
	f.updateLibrary(t, f.movies)
	heat := f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")
	src := filepath.Join(d.Path, heatRelease+".mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusMatched, res.Status)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Zero(t, res.Organized)

	file, err := f.lib.GetFileByPath(src)
	require.NoError(t, err)
	assert.False(t, file.Organized)
	assert.NoDirExists(t, filepath.Join(f.movies.Root, "Heat (1995)"))

	movie, err := f.lib.GetMovie(heat.ID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)

	// Force drops the file record inside the download and rebuilds it.
	res, err = f.proc.Process(context.Background(), d.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, download.StatusMatched, res.Status)
	assert.Equal(t, 1, res.FilesProcessed)

	rebuilt, err := f.lib.GetFileByPath(src)
	require.NoError(t, err)
	assert.False(t, rebuilt.Organized)
	_, total, err := f.lib.ListFiles(library.FileFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProcess_RetryKeepsMatchedStatus(t *testing.T) {
	f := setup(t)
	f.movies.Organize = false
	f.updateLibrary(t, f.movies)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, download.StatusMatched, res.Status)

	res, err = f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusMatched, res.Status)
	assert.Zero(t, res.FilesProcessed)

	stored, err := f.downloads.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusMatched, stored.Status)
}

func TestProcess_ForceReprocessNonASCIIPath(t *testing.T) {
	f := setup(t)
	f.movies.Organize = false
	f.updateLibrary(t, f.movies)
	amelie := f.addMovie(t, "Amélie", 2001)
	release := "Amélie.2001.1080p.BluRay.x264"
	d := f.addDownload(t, release, release+".mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesProcessed)

	res, err = f.proc.Process(context.Background(), d.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed, "the reset cleared the movie's file")
	assert.Zero(t, res.FilesSkipped)

	movie, err := f.lib.GetMovie(amelie.ID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
	_, total, err := f.lib.ListFiles(library.FileFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProcess_UnmatchedThenRetried(t *testing.T) {
	f := setup(t)
	d := f.addDownload(t, "Collateral.2004.1080p", "Collateral.2004.1080p.mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusUnmatched, res.Status)
	assert.Zero(t, res.Matched)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0], "Collateral")

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "unmatched files are tried again next run")

	f.addMovie(t, "Collateral", 2004)
	res, err = f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.FileExists(t, filepath.Join(f.movies.Root, "Collateral (2004)", "Collateral (2004).mkv"))
}

func TestProcess_PartialFailure(t *testing.T) {
	f := setup(t)
	show := f.addShow(t, "The Expanse", 2015)
	e1 := f.addEpisode(t, show, 1, 1, "Dulcinea", library.StatusWanted)
	e2 := f.addEpisode(t, show, 1, 2, "The Big Empty", library.StatusWanted)
	d := f.addDownload(t, "The.Expanse.S01.1080p", "The.Expanse.S01E01.1080p.mkv", "The.Expanse.S01E02.1080p.mkv")
	f.proc = f.build(download.NewDiskSource(), failingPlacer{Placer: f.proc.placer, match: "S01E02"})
	sub := f.bus.SubscribeAll(100)

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusMatched, res.Status, "partial failure is not completed")
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesFailed)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Organized)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "no space left")

	status, err := f.lib.GetStatus(library.Key{Kind: library.KindEpisode, ID: e1.ID})
	require.NoError(t, err)
	assert.Equal(t, library.StatusDownloaded, status)
	status, err = f.lib.GetStatus(library.Key{Kind: library.KindEpisode, ID: e2.ID})
	require.NoError(t, err)
	assert.Equal(t, library.StatusWanted, status, "failed file does not fulfill its episode")

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	for _, r := range records {
		assert.True(t, r.Processed)
		if r.Target.(library.EpisodeTarget).EpisodeID == e2.ID {
			assert.Contains(t, r.Error, "no space left")
		} else {
			assert.Empty(t, r.Error)
		}
	}

	assert.Contains(t, drain(sub), events.EventFileFailed)
}

func TestProcess_PartialFailureRetried(t *testing.T) {
	f := setup(t)
	show := f.addShow(t, "The Expanse", 2015)
	f.addEpisode(t, show, 1, 1, "Dulcinea", library.StatusWanted)
	e2 := f.addEpisode(t, show, 1, 2, "The Big Empty", library.StatusWanted)
	d := f.addDownload(t, "The.Expanse.S01.1080p", "The.Expanse.S01E01.1080p.mkv", "The.Expanse.S01E02.1080p.mkv")
	working := f.proc
	f.proc = f.build(download.NewDiskSource(), failingPlacer{Placer: working.placer, match: "S01E02"})

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, download.StatusMatched, res.Status)

	res, err = working.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Zero(t, res.FilesFailed)

	status, err := f.lib.GetStatus(library.Key{Kind: library.KindEpisode, ID: e2.ID})
	require.NoError(t, err)
	assert.Equal(t, library.StatusDownloaded, status)
	assert.FileExists(t, filepath.Join(f.tv.Root, "The Expanse", "Season 01", "The Expanse - S01E02 - The Big Empty.mkv"))

	records, err := f.matches.ListByDownload(d.ID)
	require.NoError(t, err)
	for _, r := range records {
		assert.Empty(t, r.Error)
		assert.NotNil(t, r.LibraryFileID)
	}
}

func TestProcess_AllFailedIsError(t *testing.T) {
	f := setup(t)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")
	f.proc = f.build(download.NewDiskSource(), failingPlacer{Placer: f.proc.placer, match: heatRelease})

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusError, res.Status)
	assert.Equal(t, 1, res.FilesFailed)
}

func TestProcess_MultipleGroups(t *testing.T) {
	f := setup(t, WithGroupWorkers(2))
	expanse := f.addShow(t, "The Expanse", 2015)
	severance := f.addShow(t, "Severance", 2022)
	f.addEpisode(t, expanse, 1, 1, "Dulcinea", library.StatusWanted)
	f.addEpisode(t, expanse, 1, 2, "The Big Empty", library.StatusWanted)
	f.addEpisode(t, severance, 1, 1, "Good News About Hell", library.StatusWanted)
	d := f.addDownload(t, "mixed",
		"The.Expanse.S01E01.mkv", "The.Expanse.S01E02.mkv", "Severance.S01E01.mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.FilesProcessed)
	assert.Equal(t, 3, res.Organized)
	assert.FileExists(t, filepath.Join(f.tv.Root, "Severance", "Season 01", "Severance - S01E01 - Good News About Hell.mkv"))
	assert.FileExists(t, filepath.Join(f.tv.Root, "The Expanse", "Season 01", "The Expanse - S01E02 - The Big Empty.mkv"))
}

func TestProcess_ListFilesRetries(t *testing.T) {
	f := setup(t)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")
	entries, err := download.NewDiskSource().ListFiles(context.Background(), d)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	gomock.InOrder(
		src.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(nil, errors.New("mount not ready")).Times(2),
		src.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(entries, nil),
	)

	res, err := f.build(src, nil).Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
}

func TestProcess_ListFilesGivesUp(t *testing.T) {
	f := setup(t)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(nil, errors.New("mount not ready")).Times(3)

	res, err := f.build(src, nil).Process(context.Background(), d.ID, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount not ready")
	assert.Equal(t, download.StatusError, res.Status)

	stored, err := f.downloads.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusError, stored.Status)
	assert.Contains(t, stored.Error, "mount not ready")
}

func TestProcess_DiscoversMovie(t *testing.T) {
	disc := &fakeDiscoverer{}
	f := setup(t)
	disc.store = f.lib
	f.proc = f.build(download.NewDiskSource(), nil, WithDiscoverer(disc))
	d := f.addDownload(t, "Collateral.2004.1080p", "Collateral.2004.1080p.mkv", "Unknown.Show.S01E01.mkv")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusUnmatched, res.Status)
	assert.Zero(t, disc.calls, "library does not allow discovery")

	f.movies.AutoAddDiscovered = true
	f.updateLibrary(t, f.movies)

	res, err = f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
	assert.Equal(t, 1, disc.calls, "episodes are never looked up as movies")
	assert.FileExists(t, filepath.Join(f.movies.Root, "Collateral (2004)", "Collateral (2004).mkv"))

	movies, err := f.lib.ListMovies(f.movies.ID)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.True(t, movies[0].HasFile)
}

func TestProcess_ExpandsArchives(t *testing.T) {
	exp := &fakeExpander{contents: map[string]string{heatRelease + ".mkv": "extracted video"}}
	f := setup(t, WithExpander(exp))
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".rar")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, download.StatusCompleted, res.Status)

	got, err := os.ReadFile(filepath.Join(f.movies.Root, "Heat (1995)", "Heat (1995).mkv"))
	require.NoError(t, err)
	assert.Equal(t, "extracted video", string(got))
}

func TestProcess_ExpansionFailureContinues(t *testing.T) {
	exp := &fakeExpander{err: errors.New("unrar: exit status 3")}
	f := setup(t, WithExpander(exp))
	d := f.addDownload(t, heatRelease, heatRelease+".rar")

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, download.StatusUnmatched, res.Status)
}

func TestProcess_ConcurrentRunsSerialize(t *testing.T) {
	f := setup(t)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.proc.Process(context.Background(), d.ID, Options{})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, results[0].FilesProcessed+results[1].FilesProcessed, "second run sees the completed download")
	assert.Equal(t, download.StatusCompleted, results[0].Status)
	assert.Equal(t, download.StatusCompleted, results[1].Status)
}

func TestProcess_ResumesStuckProcessing(t *testing.T) {
	f := setup(t)
	f.addMovie(t, "Heat", 1995)
	d := f.addDownload(t, heatRelease, heatRelease+".mkv")
	require.NoError(t, f.downloads.Transition(d, download.StatusProcessing))

	res, err := f.proc.Process(context.Background(), d.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, res.Status)
}
