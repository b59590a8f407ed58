package ddnet

import (
	"github.com/scylladb/go-set/strset"
)

// FindPlayers scans every server for clients named in names. Each server
// contributes at most one match: the first requested client listed on it.
func FindPlayers(list *ServerList, names []string) []PlayerStatus {
	found := make([]PlayerStatus, 0)
	if list == nil || len(names) == 0 {
		return found
	}

	wanted := strset.New(names...)
	for i := range list.Servers {
		server := &list.Servers[i]
		if server.Info == nil || len(server.Info.Clients) == 0 {
			continue
		}

		for _, client := range server.Info.Clients {
			if client.Name == "" || !wanted.Has(client.Name) {
				continue
			}
			found = append(found, toPlayerStatus(server, client))
			break
		}
	}
	return found
}

// LocatePlayers reports every name in names that is online, placed on the
// first server listing it. Unlike FindPlayers, several names may share a
// server. Results follow server order.
func LocatePlayers(list *ServerList, names []string) []PlayerStatus {
	found := make([]PlayerStatus, 0)
	if list == nil || len(names) == 0 {
		return found
	}

	pending := strset.New(names...)
	for i := range list.Servers {
		server := &list.Servers[i]
		if server.Info == nil {
			continue
		}

		for _, client := range server.Info.Clients {
			if client.Name == "" || !pending.Has(client.Name) {
				continue
			}
			pending.Remove(client.Name)
			found = append(found, toPlayerStatus(server, client))
		}
		if pending.IsEmpty() {
			break
		}
	}
	return found
}

func toPlayerStatus(server *Server, client PlayerClient) PlayerStatus {
	status := PlayerStatus{
		Player:     client.Name,
		Server:     server.Info.Name,
		ServerAddr: server.ServerAddr(),
		Map:        orDefault(server.Info.Map, unknown),
		Location:   orDefault(server.Location, unknown),
		Score:      client.Score,
		Skin:       orDefault(client.Skin.Name, defaultSkin),
		Team:       client.Team,
		Afk:        "No",
		IsOnline:   true,
	}
	if client.Afk {
		status.Afk = "Yes"
	}
	return status
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
