package monitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>PPE Gate Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        :root { --bg:#14171c; --panel:#1d222b; --line:#2b3240; --text:#e6e9ef; --muted:#8b95a7;
                --ok:#2ecc71; --warn:#f1c40f; --bad:#e74c3c; }
        * { box-sizing:border-box; margin:0; }
        body { background:var(--bg); color:var(--text); font-family:system-ui,sans-serif; padding:20px; }
        .header { display:flex; justify-content:space-between; align-items:center; margin-bottom:16px; }
        .title { font-size:1.4em; font-weight:600; }
        .grid { display:grid; grid-template-columns:2fr 1fr; gap:16px; }
        .panel { background:var(--panel); border:1px solid var(--line); border-radius:8px; padding:16px; }
        .panel h2 { font-size:1em; margin-bottom:10px; color:var(--muted); text-transform:uppercase; letter-spacing:.05em; }
        img#stream { width:100%; border-radius:6px; background:#000; }
        .badge { padding:3px 10px; border-radius:12px; font-size:.85em; background:var(--line); }
        .badge.ok { background:var(--ok); color:#08240f; }
        .badge.bad { background:var(--bad); color:#fff; }
        .badge.unknown { background:var(--warn); color:#2b2200; }
        .stat-row { display:flex; justify-content:space-between; padding:7px 0; border-bottom:1px solid var(--line); }
        .stat-row:last-child { border-bottom:none; }
        .controls { display:flex; gap:8px; margin-top:12px; }
        button { flex:1; padding:9px; border:none; border-radius:6px; cursor:pointer; font-weight:600;
                 background:var(--line); color:var(--text); }
        button.danger { background:var(--bad); color:#fff; }
        #events { list-style:none; max-height:320px; overflow-y:auto; }
        #events li { padding:6px 0; border-bottom:1px solid var(--line); font-size:.9em; }
        #events .time { color:var(--muted); margin-right:8px; }
        #events .warning { color:var(--warn); }
        #events .error { color:var(--bad); }
        #events .success { color:var(--ok); }
        .degraded { color:var(--warn); font-size:.85em; display:none; }
        #login { margin-top:12px; display:flex; gap:8px; }
        #login input { flex:1; padding:8px; border:1px solid var(--line); border-radius:6px;
                       background:var(--bg); color:var(--text); }
    </style>
</head>
<body>
    <div class="header">
        <div class="title">PPE Gate Monitor</div>
        <div>
            <span class="badge" id="ppe-badge">WAITING</span>
            <span class="degraded" id="degraded">stale data</span>
        </div>
    </div>

    <div class="grid">
        <div class="panel">
            <h2>Live Feed</h2>
            <img id="stream" src="/stream" alt="Gate camera">
        </div>

        <div>
            <div class="panel">
                <h2>Gate Status</h2>
                <div class="stat-row"><span>Relay</span><span id="relay">--</span></div>
                <div class="stat-row"><span>Helmet</span><span id="helmet">--</span></div>
                <div class="stat-row"><span>Vest</span><span id="vest">--</span></div>
                <div class="stat-row"><span>Gloves</span><span id="gloves">--</span></div>
                <div class="stat-row"><span>Mode</span><span id="mode">--</span></div>
                <div class="stat-row"><span>Updated</span><span id="updated">--</span></div>
                <div class="controls">
                    <button id="btn-toggle">Toggle Gate</button>
                    <button id="btn-restore" class="danger">Restore Auto</button>
                </div>
                <div id="login">
                    <input id="user" placeholder="supervisor">
                    <input id="pass" type="password" placeholder="password">
                    <button id="btn-login">Login</button>
                </div>
            </div>

            <div class="panel" style="margin-top:16px;">
                <h2>Activity</h2>
                <ul id="events"></ul>
            </div>
        </div>
    </div>

    <script>
        let token = null;
        const el = id => document.getElementById(id);

        function mark(id, on) { el(id).textContent = on ? 'yes' : 'no'; }

        async function refreshStatus() {
            try {
                const s = await (await fetch('/status')).json();
                const badge = el('ppe-badge');
                badge.textContent = s.ppe_status;
                badge.className = 'badge ' + (s.ppe_status === 'OK' ? 'ok' :
                    s.ppe_status === 'NOT_OK' ? 'bad' : 'unknown');
                el('relay').textContent = s.relay;
                mark('helmet', s.helmet); mark('vest', s.vest); mark('gloves', s.gloves);
                el('mode').textContent = s.override_active ? 'MANUAL' : 'AUTO';
                el('updated').textContent = s.last_updated;
                el('degraded').style.display = s.degraded ? 'inline' : 'none';
            } catch (e) {
                el('degraded').style.display = 'inline';
            }
        }

        async function refreshEvents() {
            try {
                const events = await (await fetch('/events')).json();
                el('events').innerHTML = events.map(e =>
                    '<li><span class="time">' + new Date(e.time).toLocaleTimeString() + '</span>' +
                    '<span class="' + e.type + '">' + e.message + '</span></li>').join('');
            } catch (e) { /* keep the last list */ }
        }

        function authHeaders() {
            return token ? { 'Authorization': 'Bearer ' + token } : {};
        }

        el('btn-login').onclick = async () => {
            const resp = await fetch('/api/auth/login', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ username: el('user').value, password: el('pass').value })
            });
            if (resp.ok) {
                token = (await resp.json()).token;
                el('login').style.display = 'none';
            } else {
                alert('Login failed');
            }
        };

        el('btn-toggle').onclick = async () => {
            const resp = await fetch('/control/relay', { method: 'POST', headers: authHeaders() });
            if (resp.status === 401) alert('Login required');
            refreshStatus();
        };

        el('btn-restore').onclick = async () => {
            const resp = await fetch('/control/restore', { method: 'POST', headers: authHeaders() });
            if (resp.status === 401) alert('Login required');
            refreshStatus();
        };

        refreshStatus(); refreshEvents();
        setInterval(refreshStatus, 3000);
        setInterval(refreshEvents, 5000);
    </script>
</body>
</html>
`
