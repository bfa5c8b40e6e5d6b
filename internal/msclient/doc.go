// Package msclient реализует клиентскую сторону протокола multisnake:
// канал именованных событий поверх WebSocket и сессию одного бота в одной
// комнате.
//
// Channel — транспортная абстракция (Connect/Emit/On/OnConnect/Disconnect);
// боевая реализация WSChannel шлет JSON-конверты {event, data}, сериализует
// запись и переподключается с экспоненциальным backoff. Session написан
// против интерфейса, поэтому в тестах канал подменяется фейком.
//
// Session ведет жизненный цикл connecting → joining → ready → ended:
//   - при первом коннекте шлет join_request (ровно один раз за сессию;
//     реконнект транспорта рукопожатие не повторяет);
//   - готовность наступает с первым board_request_respond, не с
//     подтверждением входа — без доски решений не бывает;
//   - на смерть своей змейки и на победу запрашивает оптимальный спавн, на
//     optimal_spawn отвечает spawn_request;
//   - End идемпотентен, поздние события после него игнорируются.
//
// Пример:
//
//	ch := msclient.NewWSChannel("https://multisnake.xyz", log.Logger)
//	s := msclient.NewSession("MyBot", "classic-classic_0", ch,
//		msclient.SessionOpts{APIKey: key, UID: uid}, log.Logger)
//	s.OnBoardUpdate = func(b *msclient.Board) { /* решение */ }
//	if err := s.Connect(ctx); err != nil { ... }
//	defer s.End()
package msclient
