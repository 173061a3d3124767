//go:build !windows

package tournament

import (
	"arena-harness/framework"
	"arena-harness/matchconfig"
	"arena-harness/readiness"
	"arena-harness/scrape"
	"arena-harness/topology"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// The client reads the config the lobby was created with, so the recorded
// paths show which file every match actually saw.
const scenarioFramework = `#!/bin/sh
case "$3" in
server) exec sleep 30 ;;
create) sleep 0.3 ;;
client)
	user="$7"
	sleep 0.2
	echo "config: $(cat "$5" | tr -d ' \n')" >> "$(dirname "$5")/seen.log"
	if [ "$user" = "my_player" ]; then
		echo "INFO: You ($user) won!"
	else
		echo "INFO: You ($user) lost!"
	fi
	;;
esac
`

func TestRoundRobinAgainstRandomPlayer(t *testing.T) {
	work := t.TempDir()
	fakeJava := filepath.Join(work, "java")
	require.NoError(t, os.WriteFile(fakeJava, []byte(scenarioFramework), 0o755))

	players := filepath.Join(work, "players")
	require.NoError(t, os.MkdirAll(players, 0o755))
	for _, name := range []string{"my_player", "random_player"} {
		require.NoError(t, os.WriteFile(filepath.Join(players, name), nil, 0o755))
	}

	launcher := &topology.Launcher{
		Framework: &framework.Framework{
			Java:    fakeJava,
			Jar:     "IngeniousFramework.jar",
			Referee: "OthelloReferee",
			Engine:  "engine",
			Host:    "localhost",
			Port:    61235,
			Dir:     work,
		},
		ServerReady:  readiness.SleepFactory(10 * time.Millisecond),
		LobbyReady:   readiness.SleepFactory(20 * time.Millisecond),
		Stagger:      readiness.SleepFactory(20 * time.Millisecond),
		MatchTimeout: 10 * time.Second,
		KillGrace:    200 * time.Millisecond,
	}

	d := &Driver{
		Self:         NewParticipant("players/my_player"),
		OpponentsDir: "players",
		ConfigPath:   filepath.Join(work, "Othello.json"),
		Settings:     matchconfig.Settings{Threads: 4, BoardSize: 8, Time: 4, TurnLength: 4000},
		LobbyPrefix:  "mylobby",
		Launcher:     launcher,
		Extractor:    scrape.Default(),
		CrossCheck:   true,
	}
	t.Chdir(work)

	results, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []scrape.Outcome{scrape.Win, scrape.Win}, results.Outcomes)
	for _, rec := range results.Records {
		require.NotNil(t, rec.Consistent)
		assert.True(t, *rec.Consistent)
	}
	assert.False(t, launcher.ServerRunning())

	seen, err := os.ReadFile(filepath.Join(work, "seen.log"))
	require.NoError(t, err)
	assert.Contains(t, string(seen), `"path1":"players/random_player","path2":"players/my_player"`)
	assert.Contains(t, string(seen), `"path1":"players/my_player","path2":"players/random_player"`)
}
