// Package bot — пул ботов multisnake: по одной сессии на каждую комнату,
// которая одновременно желаема конфигурацией и жива по данным справочника.
//
// Manager раз в PollInterval опрашивает справочник комнат и применяет
// дельту Reconcile: добавляет сессии для появившихся комнат, снимает —
// для пропавших. Недоступный справочник трактуется как «данных в этом
// цикле нет», активные сессии при этом не трогаются.
//
// В каждую сессию пул прошивает:
//   - решающий колбэк OnNeedDirection: зовется на каждый снимок доски,
//     ход уходит только если своя змейка есть в снимке и колбэк вернул
//     непустое направление;
//   - командный хук IsCommand/OnCommand: чужие сообщения чата,
//     классифицированные как команды, попадают в OnCommand с reply,
//     привязанным к комнате-источнику.
//
// Жизненный цикл:
//
//	m, err := bot.New(bot.Options{
//		Name:  "MyBot",
//		Rooms: []string{"classic-classic_0"},
//		OnNeedDirection: func(b *msclient.Board, room string) msclient.Direction {
//			return msclient.DirectionLeft
//		},
//	})
//	if err != nil { log.Fatal(err) }
//	if err := m.Start(); err != nil { log.Fatal(err) }
//	defer m.Stop()
package bot
