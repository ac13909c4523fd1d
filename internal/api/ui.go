package api

import (
	"net/http"
)

const playerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stage Player</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: monospace;
            background: #1a1a2e;
            color: #eee;
            height: 100vh;
            display: flex;
            flex-direction: column;
        }
        header {
            background: #16213e;
            padding: 12px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }
        header h1 { font-size: 16px; font-weight: normal; }
        #status { padding: 4px 10px; border-radius: 4px; font-size: 12px; }
        #status.connected { background: #1b4332; color: #95d5b2; }
        #status.disconnected { background: #7f1d1d; color: #fca5a5; }
        #status.connecting { background: #78350f; color: #fcd34d; }
        .controls {
            background: #16213e;
            padding: 10px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            gap: 10px;
            align-items: center;
            flex-wrap: wrap;
        }
        .controls input {
            background: #1a1a2e;
            border: 1px solid #0f3460;
            border-radius: 4px;
            padding: 6px 10px;
            color: #eee;
            font-family: monospace;
            font-size: 12px;
            width: 140px;
        }
        .controls button {
            background: #2563eb;
            border: none;
            border-radius: 4px;
            padding: 6px 12px;
            color: #fff;
            font-family: monospace;
            font-size: 12px;
            cursor: pointer;
        }
        .controls button.flag { background: #059669; }
        .controls button.stop { background: #dc2626; }
        #result { font-size: 12px; padding: 4px 10px; border-radius: 4px; display: none; }
        #result.success { display: inline; background: #1b4332; color: #95d5b2; }
        #result.error { display: inline; background: #7f1d1d; color: #fca5a5; }
        main { flex: 1; overflow: hidden; display: flex; }
        #stage {
            width: 480px;
            height: 360px;
            margin: 10px;
            position: relative;
            background: #fff;
            border: 2px solid #0f3460;
            outline: none;
            overflow: hidden;
        }
        #stage:focus { border-color: #059669; }
        .sprite {
            position: absolute;
            width: 24px;
            height: 24px;
            margin: -12px 0 0 -12px;
            background: #f59e0b;
            border-radius: 50%;
            color: #111;
            font-size: 10px;
            text-align: center;
            line-height: 24px;
        }
        .bubble {
            position: absolute;
            background: #fff;
            color: #111;
            border: 1px solid #999;
            border-radius: 6px;
            padding: 2px 6px;
            font-size: 11px;
            white-space: nowrap;
        }
        #events { flex: 1; overflow-y: auto; padding: 10px; }
        .event {
            padding: 6px 10px;
            margin-bottom: 4px;
            background: #16213e;
            border-radius: 4px;
            border-left: 3px solid #0f3460;
            font-size: 12px;
            display: flex;
            gap: 12px;
        }
        .event.level-error { border-left-color: #dc2626; background: #1f1515; }
        .event.scope-trigger { border-left-color: #7c3aed; }
        .event.scope-sound { border-left-color: #d97706; }
        .event.scope-input { border-left-color: #059669; }
        .ts { color: #6b7280; min-width: 80px; }
        .name { color: #60a5fa; font-weight: bold; min-width: 140px; }
        .id { color: #a78bfa; }
        .msg { color: #9ca3af; }
        footer {
            background: #16213e;
            padding: 8px 20px;
            border-top: 1px solid #0f3460;
            font-size: 11px;
            color: #6b7280;
        }
    </style>
</head>
<body>
    <header>
        <h1>Stage Player</h1>
        <span id="status" class="disconnected">Disconnected</span>
    </header>
    <div class="controls">
        <button class="flag" onclick="post('/green-flag', null, 'Green flag')">Green Flag</button>
        <button class="stop" onclick="post('/sounds/stop', null, 'Sounds stopped')">Stop Sounds</button>
        <input type="text" id="broadcast" placeholder="broadcast name">
        <button onclick="sendBroadcast()">Broadcast</button>
        <span id="result"></span>
    </div>
    <main>
        <div id="stage" tabindex="0" title="Click, then press keys"></div>
        <div id="events"></div>
    </main>
    <footer>
        <span id="count">0</span> events | frame <span id="frame">0</span>
    </footer>

    <script>
        const eventsDiv = document.getElementById('events');
        const statusEl = document.getElementById('status');
        const countEl = document.getElementById('count');
        const frameEl = document.getElementById('frame');
        const stageEl = document.getElementById('stage');
        const resultEl = document.getElementById('result');
        let eventCount = 0;
        let ws = null;
        let reconnectTimer = null;

        function showResult(ok, message) {
            resultEl.className = ok ? 'success' : 'error';
            resultEl.textContent = message;
            setTimeout(function() { resultEl.className = ''; resultEl.textContent = ''; }, 3000);
        }

        function post(path, body, label) {
            fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: body ? JSON.stringify(body) : null
            })
            .then(function(res) { return res.json(); })
            .then(function(data) {
                if (data.ok) { if (label) showResult(true, label); }
                else showResult(false, data.error || 'Request failed');
            })
            .catch(function() { showResult(false, 'Network error'); });
        }

        function sendBroadcast() {
            const input = document.getElementById('broadcast');
            const name = input.value.trim();
            if (!name) { showResult(false, 'Enter a broadcast name'); return; }
            post('/broadcast', { name: name }, 'Broadcast ' + name);
        }

        const keyNames = {
            ' ': 'space', 'ArrowUp': 'up arrow', 'ArrowDown': 'down arrow',
            'ArrowLeft': 'left arrow', 'ArrowRight': 'right arrow', 'Enter': 'enter'
        };
        stageEl.addEventListener('keydown', function(e) {
            const key = keyNames[e.key] || (e.key.length === 1 ? e.key.toLowerCase() : null);
            if (!key) return;
            e.preventDefault();
            post('/input/key', { key: key }, null);
        });

        // Stage coordinates: origin at centre, y up, 480x360.
        function drawStage(frame) {
            frameEl.textContent = frame.seq;
            stageEl.innerHTML = '';
            (frame.sprites || []).forEach(function(s) {
                if (!s.visible) return;
                const left = 240 + s.x, top = 180 - s.y;
                const el = document.createElement('div');
                el.className = 'sprite';
                el.style.left = left + 'px';
                el.style.top = top + 'px';
                el.style.transform = 'rotate(' + (s.direction - 90) + 'deg)';
                el.textContent = s.name.slice(0, 2);
                stageEl.appendChild(el);
                if (s.saying) {
                    const b = document.createElement('div');
                    b.className = 'bubble';
                    b.style.left = (left + 14) + 'px';
                    b.style.top = (top - 30) + 'px';
                    b.textContent = s.saying;
                    stageEl.appendChild(b);
                }
            });
        }

        function pollStage() {
            fetch('/stage')
                .then(function(res) { return res.ok ? res.json() : null; })
                .then(function(frame) { if (frame) drawStage(frame); })
                .catch(function() {})
                .finally(function() { setTimeout(pollStage, 100); });
        }

        function renderEvent(e) {
            const div = document.createElement('div');
            div.className = 'event level-' + e.level + ' scope-' + (e.event.split('.')[0] || '');

            let idText = '';
            if (e.fields) {
                idText = e.fields.sprite || e.fields.key || e.fields.broadcast || e.fields.source || '';
            }
            const parts = [
                ['ts', new Date(e.ts).toLocaleTimeString('en-US', { hour12: false })],
                ['name', e.event],
                ['id', idText],
                ['msg', e.msg || '']
            ];
            parts.forEach(function(p) {
                if (!p[1]) return;
                const span = document.createElement('span');
                span.className = p[0];
                span.textContent = p[1];
                div.appendChild(span);
            });

            eventsDiv.appendChild(div);
            countEl.textContent = ++eventCount;
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
            while (eventsDiv.children.length > 500) {
                eventsDiv.removeChild(eventsDiv.firstChild);
            }
        }

        function setStatus(status) {
            statusEl.className = status;
            statusEl.textContent = status.charAt(0).toUpperCase() + status.slice(1);
        }

        function connect() {
            if (ws && ws.readyState === WebSocket.OPEN) return;
            setStatus('connecting');
            const protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + location.host + '/ws/events');
            ws.onopen = function() { setStatus('connected'); };
            ws.onmessage = function(msg) {
                try { renderEvent(JSON.parse(msg.data)); }
                catch (err) { console.error('Failed to parse event:', err); }
            };
            ws.onclose = function() {
                setStatus('disconnected');
                if (!reconnectTimer) {
                    reconnectTimer = setTimeout(function() { reconnectTimer = null; connect(); }, 3000);
                }
            };
            ws.onerror = function() { ws.close(); };
        }

        connect();
        pollStage();
    </script>
</body>
</html>`

// uiHandler serves the player UI page.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(playerUIHTML))
}
