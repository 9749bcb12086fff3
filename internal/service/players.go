package service

import (
	"context"

	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/session"
)

// JoinPlayer регистрирует игрока в реестре
func (s *SpawnService) JoinPlayer(ctx context.Context, c session.Controller) (session.Controller, error) {
	joined, err := s.registry.Join(c)
	if err != nil {
		return session.Controller{}, err
	}
	s.metrics.players.Set(float64(s.registry.PlayersNumber(false)))

	s.log.Info("👤 Игрок %s подключился (индекс %d, local=%v)", joined.ID, joined.Index, joined.Local)
	s.publish(ctx, eventbus.EventPlayerJoined, eventbus.PlayerChanged{
		PlayerID: joined.ID,
		Index:    joined.Index,
		Local:    joined.Local,
	})
	return joined, nil
}

// LeavePlayer удаляет игрока из реестра
func (s *SpawnService) LeavePlayer(ctx context.Context, id string) error {
	c, ok := s.registry.Controller(id)
	if !ok {
		return session.ErrPlayerNotFound
	}
	if err := s.registry.Leave(id); err != nil {
		return err
	}
	s.metrics.players.Set(float64(s.registry.PlayersNumber(false)))

	s.log.Info("👋 Игрок %s отключился", id)
	s.publish(ctx, eventbus.EventPlayerLeft, eventbus.PlayerChanged{
		PlayerID: c.ID,
		Index:    c.Index,
		Local:    c.Local,
	})
	return nil
}

// Players возвращает зарегистрированных игроков в порядке подключения
func (s *SpawnService) Players(localOnly bool) []session.Controller {
	return s.registry.Controllers(localOnly)
}
